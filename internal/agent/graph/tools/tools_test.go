package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
)

type sentEmail struct{ to, subject, content string }

type fakeMailer struct {
	sent []sentEmail
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, to, subject, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, content})
	return "msg-1", nil
}

type fakeCalendar struct {
	loc     *time.Location
	slots   []model.TimeSlot
	created []model.MeetingRequest
	gotDay  time.Time
}

func (f *fakeCalendar) FreeSlots(_ context.Context, day time.Time, _ time.Duration) ([]model.TimeSlot, error) {
	f.gotDay = day
	return f.slots, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, req model.MeetingRequest) (*model.ScheduledMeeting, error) {
	f.created = append(f.created, req)
	return &model.ScheduledMeeting{ID: "evt-1", HTMLLink: "https://calendar/evt-1", Start: req.Start, End: req.End}, nil
}

func (f *fakeCalendar) Location() *time.Location { return f.loc }

type fakeMemory struct {
	mu    sync.Mutex
	items map[string]map[string]*model.MemoryItem
	seq   int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{items: map[string]map[string]*model.MemoryItem{}}
}

func (f *fakeMemory) Put(_ context.Context, ns model.Namespace, id, content string) (*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		f.seq++
		id = "mem-" + string(rune('0'+f.seq))
	}
	if f.items[ns.String()] == nil {
		f.items[ns.String()] = map[string]*model.MemoryItem{}
	}
	item := &model.MemoryItem{ID: id, Content: content}
	f.items[ns.String()][id] = item
	return item, nil
}

func (f *fakeMemory) Get(_ context.Context, ns model.Namespace, id string) (*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[ns.String()][id]; ok {
		return item, nil
	}
	return nil, errx.NotFound("memory %s", id)
}

func (f *fakeMemory) Delete(_ context.Context, ns model.Namespace, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[ns.String()][id]; !ok {
		return errx.NotFound("memory %s", id)
	}
	delete(f.items[ns.String()], id)
	return nil
}

func (f *fakeMemory) Search(_ context.Context, ns model.Namespace, query string, limit int) ([]*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MemoryItem
	for _, item := range f.items[ns.String()] {
		if strings.Contains(strings.ToLower(item.Content), strings.ToLower(query)) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Friday 14 March 2025, 10:05 UTC
var testNow = time.Date(2025, time.March, 14, 10, 5, 0, 0, time.UTC)

func findTool(t *testing.T, tools []tool.BaseTool, name string) tool.InvokableTool {
	t.Helper()
	for _, bt := range tools {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		if info.Name == name {
			it, ok := bt.(tool.InvokableTool)
			require.True(t, ok)
			return it
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func run[T any](t *testing.T, ctx context.Context, it tool.InvokableTool, args string) *T {
	t.Helper()
	out, err := it.InvokableRun(ctx, args)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return &v
}

func TestGetAssistantToolsSkipsMissingCollaborators(t *testing.T) {
	all := GetAssistantTools(Deps{Mailer: &fakeMailer{}, Calendar: &fakeCalendar{loc: time.UTC}, Memory: newFakeMemory()})
	infos, err := GetToolInfos(context.Background(), all)
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{ToolWriteEmail, ToolScheduleMeeting, ToolCheckAvailability, ToolManageMemory, ToolSearchMemory}, names)

	assert.Len(t, GetAssistantTools(Deps{Mailer: &fakeMailer{}}), 1)
}

func TestWriteEmail(t *testing.T) {
	mailer := &fakeMailer{}
	it := findTool(t, GetAssistantTools(Deps{Mailer: mailer}), ToolWriteEmail)

	out := run[WriteEmailOutput](t, context.Background(), it, `{"to":" Alice <alice@company.com> ","subject":"Re: API docs","content":"Hi Alice"}`)
	assert.Equal(t, "sent", out.Status)
	assert.Equal(t, "msg-1", out.MessageID)
	assert.Equal(t, "Email sent to Alice <alice@company.com> with subject 'Re: API docs'", out.Message)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Alice <alice@company.com>", mailer.sent[0].to)

	out = run[WriteEmailOutput](t, context.Background(), it, `{"to":"not an address","subject":"x","content":"y"}`)
	assert.Equal(t, "rejected", out.Status)
	assert.Len(t, mailer.sent, 1)
}

func TestWriteEmailPropagatesUpstreamFailure(t *testing.T) {
	boom := errors.New("token expired")
	it := findTool(t, GetAssistantTools(Deps{Mailer: &fakeMailer{err: boom}}), ToolWriteEmail)
	_, err := it.InvokableRun(context.Background(), `{"to":"a@b.com","subject":"x","content":"y"}`)
	assert.ErrorIs(t, err, boom)
}

func TestScheduleMeetingFirstFreeSlot(t *testing.T) {
	cal := &fakeCalendar{loc: time.UTC, slots: []model.TimeSlot{
		{Start: time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 17, 9, 15, 0, 0, time.UTC)},
		{Start: time.Date(2025, 3, 17, 11, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 17, 12, 0, 0, 0, time.UTC)},
	}}
	it := findTool(t, GetAssistantTools(Deps{Calendar: cal, Now: func() time.Time { return testNow }}), ToolScheduleMeeting)

	out := run[ScheduleMeetingOutput](t, context.Background(), it,
		`{"attendees":["alice@company.com","alice@company.com",""],"subject":"API docs","duration_minutes":45,"preferred_day":"Monday"}`)
	assert.Equal(t, "scheduled", out.Status)
	assert.Equal(t, "evt-1", out.EventID)
	assert.Equal(t, "Meeting 'API docs' scheduled for Monday, March 17, 2025 at 11:00 AM with 1 attendees", out.Message)

	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), cal.gotDay)
	require.Len(t, cal.created, 1)
	assert.Equal(t, []string{"alice@company.com"}, cal.created[0].Attendees)
	assert.Equal(t, 45*time.Minute, cal.created[0].End.Sub(cal.created[0].Start))
}

func TestScheduleMeetingExplicitStart(t *testing.T) {
	cal := &fakeCalendar{loc: time.UTC}
	it := findTool(t, GetAssistantTools(Deps{Calendar: cal, Now: func() time.Time { return testNow }}), ToolScheduleMeeting)

	out := run[ScheduleMeetingOutput](t, context.Background(), it,
		`{"attendees":["bob@company.com"],"subject":"Sync","duration_minutes":0,"preferred_day":"tomorrow","start_time":"2:30 pm"}`)
	assert.Equal(t, "scheduled", out.Status)
	require.Len(t, cal.created, 1)
	assert.Equal(t, time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC), cal.created[0].Start)
	assert.Equal(t, time.Date(2025, 3, 15, 15, 0, 0, 0, time.UTC), cal.created[0].End)
}

func TestScheduleMeetingNoSlot(t *testing.T) {
	cal := &fakeCalendar{loc: time.UTC}
	it := findTool(t, GetAssistantTools(Deps{Calendar: cal, Now: func() time.Time { return testNow }}), ToolScheduleMeeting)

	out := run[ScheduleMeetingOutput](t, context.Background(), it,
		`{"attendees":["bob@company.com"],"subject":"Sync","duration_minutes":30,"preferred_day":"today"}`)
	assert.Equal(t, "unavailable", out.Status)
	assert.Empty(t, cal.created)
}

func TestCheckAvailability(t *testing.T) {
	cal := &fakeCalendar{loc: time.UTC, slots: []model.TimeSlot{
		{Start: time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)},
		{Start: time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 15, 17, 0, 0, 0, time.UTC)},
	}}
	it := findTool(t, GetAssistantTools(Deps{Calendar: cal, Now: func() time.Time { return testNow }}), ToolCheckAvailability)

	out := run[CheckAvailabilityOutput](t, context.Background(), it, `{"day":"tomorrow"}`)
	assert.Equal(t, "Saturday, March 15, 2025", out.Day)
	assert.Equal(t, []string{"9:00 AM - 10:00 AM", "2:00 PM - 5:00 PM"}, out.Slots)
	assert.Equal(t, "Available times on Saturday, March 15, 2025: 9:00 AM - 10:00 AM, 2:00 PM - 5:00 PM", out.Message)
}

func TestMemoryToolsUseUserNamespace(t *testing.T) {
	mem := newFakeMemory()
	all := GetAssistantTools(Deps{Memory: mem})
	manage := findTool(t, all, ToolManageMemory)
	search := findTool(t, all, ToolSearchMemory)

	alice := model.WithUserID(context.Background(), "alice")
	bob := model.WithUserID(context.Background(), "bob")

	created := run[ManageMemoryOutput](t, alice, manage, `{"content":"Alice prefers morning meetings"}`)
	assert.Equal(t, "created", created.Status)
	require.NotEmpty(t, created.ID)

	found := run[SearchMemoryOutput](t, alice, search, `{"query":"morning"}`)
	assert.Equal(t, 1, found.Total)

	other := run[SearchMemoryOutput](t, bob, search, `{"query":"morning"}`)
	assert.Equal(t, 0, other.Total)
	assert.NotNil(t, other.Memories)

	updated := run[ManageMemoryOutput](t, alice, manage, `{"action":"update","id":"`+created.ID+`","content":"Alice prefers afternoon meetings"}`)
	assert.Equal(t, "updated", updated.Status)
	assert.Equal(t, created.ID, updated.ID)

	missing := run[ManageMemoryOutput](t, bob, manage, `{"action":"delete","id":"`+created.ID+`"}`)
	assert.Equal(t, "not_found", missing.Status)

	deleted := run[ManageMemoryOutput](t, alice, manage, `{"action":"delete","id":"`+created.ID+`"}`)
	assert.Equal(t, "deleted", deleted.Status)

	rejected := run[ManageMemoryOutput](t, alice, manage, `{"action":"archive","content":"x"}`)
	assert.Equal(t, "rejected", rejected.Status)
}

func TestResolveDay(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"Tomorrow", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"next friday", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"next Monday", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"wed", time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC)},
		{"in two days", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"in 3 days", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"2025-04-01", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"March 20, 2025", time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)},
		{"Jan 5", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveDay(tt.in, testNow, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ResolveDay("someday", testNow, time.UTC)
	assert.Error(t, err)
}

func TestResolveClock(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	for in, want := range map[string]int{"14:30": 14*60 + 30, "2pm": 14 * 60, "9:15 AM": 9*60 + 15, "at 4pm": 16 * 60} {
		got, err := ResolveClock(in, day)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Hour()*60+got.Minute(), in)
	}
	for _, in := range []string{"noonish", "tomorrow"} {
		_, err := ResolveClock(in, day)
		assert.Error(t, err, in)
	}
}

func TestFirstFit(t *testing.T) {
	slots := []model.TimeSlot{
		{Start: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)},
		{Start: time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC)},
	}
	start, ok := FirstFit(slots, 15*time.Minute, testNow)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 15, 0, 0, time.UTC), start)

	start, ok = FirstFit(slots, time.Hour, testNow)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC), start)

	_, ok = FirstFit(slots, 5*time.Hour, testNow)
	assert.False(t, ok)
}
