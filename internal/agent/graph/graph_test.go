package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/email-assistant-core/server/internal/agent/graph/conversations"
	"github.com/email-assistant-core/server/internal/agent/graph/nodes"
	"github.com/email-assistant-core/server/internal/agent/graph/tools"
	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/agent/repo"
	errx "github.com/email-assistant-core/server/internal/core/error"
)

// scriptedModel replays canned replies and records every input.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	i := len(m.inputs) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	r := *m.replies[i]
	r.ToolCalls = append([]schema.ToolCall(nil), r.ToolCalls...)
	return &r, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

type fixedRouter struct {
	decision *model.RoutingDecision
	err      error
	seen     []model.RouteInput
}

func (r *fixedRouter) Route(_ context.Context, in model.RouteInput) (*model.RoutingDecision, error) {
	r.seen = append(r.seen, in)
	return r.decision, r.err
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendEmail(_ context.Context, to, subject, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject)
	return "msg-1", nil
}

type fixture struct {
	rdb   *redis.Client
	convs *repo.RedisConversationRepository
	mem   *repo.RedisMemoryStore
	mail  *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &fixture{
		rdb:   rdb,
		convs: repo.NewRedisConversationRepository(rdb, time.Hour),
		mem:   repo.NewRedisMemoryStore(rdb),
		mail:  &recordingMailer{},
	}
}

func (f *fixture) runner(t *testing.T, r nodes.Router, m *scriptedModel, maxCalls int, withTools bool) Runner {
	t.Helper()
	var ts []tool.BaseTool
	if withTools {
		ts = tools.GetAssistantTools(tools.Deps{Mailer: f.mail, Memory: f.mem})
	}
	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		Router:            r,
		ResponseModel:     m,
		ResponseModelName: "gemini-2.5-flash",
		MessagesManager:   conversations.NewMessagesManager(f.convs, model.ConversationConfig{MaxHistory: 20}),
		Assembler: nodes.AssemblerConfig{
			Profile:      model.Profile{Name: "John", FullName: "John Doe", Email: "john@company.com"},
			Instructions: "Use these tools when appropriate.",
			Now:          func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
		},
		Tools:        ts,
		ToolMaxCalls: maxCalls,
	})
	require.NoError(t, err)
	return NewRunner(runnable)
}

func (f *fixture) history(t *testing.T, conversationID string) []*schema.Message {
	t.Helper()
	h, err := f.convs.LoadHistory(context.Background(), conversationID)
	require.NoError(t, err)
	return h.Messages
}

func passThrough(msg string) *model.RoutingDecision {
	return &model.RoutingDecision{Next: model.StageRespond, Messages: []*schema.Message{schema.UserMessage(msg)}}
}

func TestInvokePassThroughAnswersDirectly(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{decision: passThrough("Hey, can you check my calendar for tomorrow?")}
	m := &scriptedModel{replies: []*schema.Message{{
		Role:         schema.Assistant,
		Content:      "You have no meetings tomorrow.",
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000}},
	}}}

	reply, err := f.runner(t, rt, m, 4, false).Invoke(context.Background(), model.RouteInput{
		ConversationID: "c1",
		Message:        "Hey, can you check my calendar for tomorrow?",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", reply.ConversationID)
	assert.Equal(t, "You have no meetings tomorrow.", reply.Content)
	assert.Equal(t, model.StageRespond, reply.Next)
	assert.Empty(t, reply.Classification)
	assert.InDelta(t, 0.30, reply.TotalCostUSD, 1e-9)

	require.Len(t, rt.seen, 1)
	assert.Equal(t, model.DefaultUserID, rt.seen[0].UserID)

	require.Equal(t, 1, m.calls())
	input := m.inputs[0]
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "John Doe")
	assert.Equal(t, "Hey, can you check my calendar for tomorrow?", input[1].Content)

	hist := f.history(t, "c1")
	require.Len(t, hist, 2)
	assert.Equal(t, schema.User, hist[0].Role)
	assert.Equal(t, "You have no meetings tomorrow.", hist[1].Content)
}

func TestInvokeTerminateSkipsResponseStage(t *testing.T) {
	f := newFixture(t)
	email := &model.EmailFields{AuthorName: "Deals", AuthorEmail: "news@shop.com", Subject: "Weekly deals"}
	rt := &fixedRouter{decision: &model.RoutingDecision{
		Next:    model.StageEnd,
		Email:   email,
		Verdict: &model.Verdict{Classification: model.ClassificationIgnore, Reasoning: "Marketing newsletter"},
	}}
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("unused", nil)}}

	reply, err := f.runner(t, rt, m, 4, true).Invoke(context.Background(), model.RouteInput{ConversationID: "c2", Message: "From: news@shop.com ..."})
	require.NoError(t, err)
	assert.Equal(t, model.StageEnd, reply.Next)
	assert.Equal(t, model.ClassificationIgnore, reply.Classification)
	assert.Equal(t, `Ignored email from Deals <news@shop.com>: "Weekly deals". Marketing newsletter`, reply.Content)
	assert.Zero(t, m.calls())

	hist := f.history(t, "c2")
	require.Len(t, hist, 2)
	assert.Equal(t, "From: news@shop.com ...", hist[0].Content)
	assert.Equal(t, reply.Content, hist[1].Content)
}

func TestInvokeRunsToolsAndSavesFinalReply(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{decision: &model.RoutingDecision{
		Next:     model.StageRespond,
		Messages: []*schema.Message{schema.UserMessage("Respond to the email from Alice")},
		Email:    &model.EmailFields{AuthorName: "Alice", AuthorEmail: "alice@company.com", Subject: "API docs"},
		Verdict:  &model.Verdict{Classification: model.ClassificationRespond},
	}}
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{{
			Function: schema.FunctionCall{Name: tools.ToolWriteEmail, Arguments: `{"to":" alice@company.com ","subject":"Re: API docs","content":"I'll take a look."}`},
		}}),
		schema.AssistantMessage("", []schema.ToolCall{{
			Function: schema.FunctionCall{Name: tools.ToolManageMemory, Arguments: `{"action":"CREATE","content":"Alice asked about the API docs"}`},
		}}),
		schema.AssistantMessage("I replied to Alice and saved a note.", nil),
	}}

	reply, err := f.runner(t, rt, m, 4, true).Invoke(context.Background(), model.RouteInput{
		ConversationID: "c3", UserID: "u1", Message: "From: alice@company.com ...",
	})
	require.NoError(t, err)
	assert.Equal(t, "I replied to Alice and saved a note.", reply.Content)
	assert.Equal(t, model.ClassificationRespond, reply.Classification)

	assert.Equal(t, []string{"alice@company.com|Re: API docs"}, f.mail.sent)
	assert.Len(t, m.tools, 3, "calendar tools are not offered without a calendar")

	items, err := f.mem.Search(context.Background(), model.CollectionNamespace("u1"), "Alice API", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.Equal(t, 3, m.calls())
	second := m.inputs[1]
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "sent")

	hist := f.history(t, "c3")
	require.Len(t, hist, 2)
	assert.Equal(t, "Respond to the email from Alice", hist[0].Content)
	assert.Equal(t, "I replied to Alice and saved a note.", hist[1].Content)
}

func TestInvokeStopsAtToolLimit(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{decision: passThrough("Send Bob a note")}
	call := schema.AssistantMessage("Still working on it.", []schema.ToolCall{{
		Function: schema.FunctionCall{Name: tools.ToolSearchMemory, Arguments: `{"query":"Bob"}`},
	}})
	m := &scriptedModel{replies: []*schema.Message{call}}

	reply, err := f.runner(t, rt, m, 1, true).Invoke(context.Background(), model.RouteInput{ConversationID: "c4", Message: "Send Bob a note"})
	require.NoError(t, err)
	assert.Equal(t, "Still working on it.", reply.Content)
	require.Equal(t, 2, m.calls())

	second := m.inputs[1]
	notice := second[len(second)-1]
	assert.Equal(t, schema.System, notice.Role)
	assert.Contains(t, notice.Content, "maximum tool call limit (1)")
}

func TestInvokeRouterFailureAborts(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{err: errx.Malformed("email_found is missing")}
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("unused", nil)}}

	_, err := f.runner(t, rt, m, 4, false).Invoke(context.Background(), model.RouteInput{ConversationID: "c5", Message: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrMalformedOutput))
	assert.Zero(t, m.calls())
	assert.Empty(t, f.history(t, "c5"))
}

func TestInvokeRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{decision: passThrough("x")}
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("unused", nil)}}

	_, err := f.runner(t, rt, m, 4, false).Invoke(context.Background(), model.RouteInput{Message: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrEmptyMessage))
	assert.Empty(t, rt.seen)
}

func TestInvokeGeneratesConversationID(t *testing.T) {
	f := newFixture(t)
	rt := &fixedRouter{decision: passThrough("hi")}
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("Hello!", nil)}}

	reply, err := f.runner(t, rt, m, 4, false).Invoke(context.Background(), model.RouteInput{Message: "hi"})
	require.NoError(t, err)
	assert.Len(t, reply.ConversationID, 36)
	assert.Len(t, f.history(t, reply.ConversationID), 2)
}

func TestBuildGraphValidatesConfig(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	assert.Error(t, err)
	_, err = BuildGraph(context.Background(), &GraphConfig{})
	assert.Error(t, err)
}

func TestSanitizeToolArguments(t *testing.T) {
	cases := []struct {
		name string
		tool string
		in   string
		want map[string]any
	}{
		{
			name: "email fields trimmed",
			tool: tools.ToolWriteEmail,
			in:   `{"to":"  a@b.com ","subject":" Hi ","content":" body "}`,
			want: map[string]any{"to": "a@b.com", "subject": "Hi", "content": " body "},
		},
		{
			name: "attendees string split and duration parsed",
			tool: tools.ToolScheduleMeeting,
			in:   `{"attendees":"a@b.com, c@d.com","duration_minutes":"45","preferred_day":" friday "}`,
			want: map[string]any{"attendees": []any{"a@b.com", "c@d.com"}, "duration_minutes": float64(45), "preferred_day": "friday"},
		},
		{
			name: "duration clamped",
			tool: tools.ToolScheduleMeeting,
			in:   `{"attendees":["a@b.com"],"duration_minutes":9000}`,
			want: map[string]any{"attendees": []any{"a@b.com"}, "duration_minutes": float64(480)},
		},
		{
			name: "bad limit dropped",
			tool: tools.ToolSearchMemory,
			in:   `{"query":" alice ","limit":"lots"}`,
			want: map[string]any{"query": "alice"},
		},
		{
			name: "memory action normalised",
			tool: tools.ToolManageMemory,
			in:   `{"action":" Update ","id":" m1 ","content":"x"}`,
			want: map[string]any{"action": "update", "id": "m1", "content": "x"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(SanitizeToolArguments(tc.tool, tc.in)), &got))
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, "not json", SanitizeToolArguments(tools.ToolWriteEmail, "not json"))
	assert.Equal(t, `{"x": 1}`, SanitizeToolArguments("other_tool", `{"x": 1}`))
}
