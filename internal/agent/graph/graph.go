package graph

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/email-assistant-core/server/internal/agent/graph/conversations"
	"github.com/email-assistant-core/server/internal/agent/graph/nodes"
	"github.com/email-assistant-core/server/internal/agent/graph/observers"
	"github.com/email-assistant-core/server/internal/agent/graph/tools"
	"github.com/email-assistant-core/server/internal/agent/inference"
	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/agent/router"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// Runner executes the compiled graph for one incoming message.
type Runner interface {
	Invoke(ctx context.Context, in model.RouteInput) (*model.Reply, error)
}

// Config holds everything needed to compose the assistant end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models, the router and the tools.
type Config struct {
	APIKey          string
	BaseURL         string
	TriageModel     model.TriageModelConfig
	ClassifierModel model.ClassifierModelConfig
	ResponseModel   model.ResponseModelConfig
	Profile         model.Profile
	Rules           model.TriageRules
	Agent           model.AgentConfig
	Conversation    model.ConversationConfig
	Memory          model.MemoryConfig

	ConversationRepo model.ConversationStore
	// Optional collaborators; tools whose collaborator is nil are not offered.
	MemoryStore model.MemoryStore
	Examples    router.ExampleSource
	Mailer      model.Mailer
	Calendar    model.Calendar
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Router            nodes.Router
	ResponseModel     einomodel.ToolCallingChatModel
	ResponseModelName string
	MessagesManager   *conversations.MessagesManager
	Assembler         nodes.AssemblerConfig
	Tools             []tool.BaseTool
	ToolMaxCalls      int
}

// GraphBuilder handles the construction of the assistant graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.RouteInput, *schema.Message]
	bound  einomodel.ToolCallingChatModel
}

type graphRunner struct {
	runnable compose.Runnable[model.RouteInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.RouteInput) (*model.Reply, error) {
	if in.ConversationID == "" {
		in.ConversationID = uuid.NewString()
	}
	if in.UserID == "" {
		in.UserID = model.DefaultUserID
	}
	ctx = model.WithUserID(ctx, in.UserID)
	ctx, meter := model.WithCostMeter(ctx)

	started := time.Now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}

	reply := &model.Reply{ConversationID: in.ConversationID, TotalCostUSD: meter.Total()}
	if out != nil {
		reply.Content = out.Content
		if v, ok := out.Extra[nodes.ExtraClassification].(string); ok {
			reply.Classification = model.Classification(v)
		}
		if v, ok := out.Extra[nodes.ExtraNext].(string); ok {
			reply.Next = model.Stage(v)
		}
	}

	logx.Info().
		Str("conversation_id", reply.ConversationID).
		Str("user_id", in.UserID).
		Str("classification", reply.Classification.String()).
		Str("stage", string(reply.Next)).
		Float64("total_cost_usd", reply.TotalCostUSD).
		Dur("elapsed", time.Since(started)).
		Msg("Message handled")
	return reply, nil
}

// BuildAssistantGraph composes chat models, router, tools and conversation
// storage, builds the graph and returns a Runner.
func BuildAssistantGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	policy, err := model.ParsePolicy(cfg.Agent.Policy)
	if err != nil {
		return nil, err
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Triage:     &cfg.TriageModel,
		Classifier: &cfg.ClassifierModel,
		Response:   &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	rt, err := router.New(router.Deps{
		Triage:     inference.NewChatModelClient(cms.Triage, cms.TriageModelName),
		Classifier: inference.NewChatModelClient(cms.Classifier, cms.ClassifierModelName),
		Profile:    cfg.Profile,
		Rules:      cfg.Rules,
		Policy:     policy,
		Examples:   cfg.Examples,
	})
	if err != nil {
		return nil, err
	}

	assistantTools := tools.GetAssistantTools(tools.Deps{
		Mailer:      cfg.Mailer,
		Calendar:    cfg.Calendar,
		Memory:      cfg.MemoryStore,
		SearchLimit: cfg.Memory.SearchLimit,
	})

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Router:            rt,
		ResponseModel:     cms.Response,
		ResponseModelName: cms.ResponseModelName,
		MessagesManager:   conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation),
		Assembler:         nodes.AssemblerConfig{Profile: cfg.Profile, Instructions: cfg.Agent.Instructions},
		Tools:             assistantTools,
		ToolMaxCalls:      cfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Int("tools", len(assistantTools)).Str("policy", string(policy)).Msg("Assistant graph built successfully")
	return NewRunner(runnable), nil
}

// NewRunner wraps a compiled graph.
func NewRunner(runnable compose.Runnable[model.RouteInput, *schema.Message]) Runner {
	return &graphRunner{runnable: runnable}
}

// BuildGraph constructs and returns the compiled assistant graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.RouteInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Router == nil {
		return nil, fmt.Errorf("router is nil")
	}
	if config.ResponseModel == nil {
		return nil, fmt.Errorf("response model is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.RouteInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the tools to the response model and adds the tool executor
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	if len(b.config.Tools) == 0 {
		b.bound = b.config.ResponseModel
		return nil
	}

	toolInfos, err := tools.GetToolInfos(ctx, b.config.Tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	b.bound, err = b.config.ResponseModel.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to response model")
		return fmt.Errorf("failed to bind tools to response model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               b.config.Tools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return SanitizeToolArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	add := []func() error{
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeInputConverter,
				nodes.NewInputConverterNode(),
				compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeTriageRouter,
				nodes.NewTriageRouterNode(b.config.Router),
				compose.WithStatePostHandler(nodes.NewTriageRouterPostHandler()),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeTriageEnd,
				nodes.NewTriageEndNode(b.config.MessagesManager),
			)
		},
		func() error {
			return b.graph.AddLambdaNode(nodes.NodeResponseAssembler,
				nodes.NewResponseAssemblerNode(b.config.MessagesManager, b.config.Assembler),
			)
		},
		func() error {
			return b.graph.AddChatModelNode(nodes.NodeResponseChatModel,
				b.bound,
				compose.WithStatePreHandler(nodes.NewResponseChatModelPreHandler(b.config.ToolMaxCalls)),
				compose.WithStatePostHandler(nodes.NewResponseChatModelPostHandler(b.config.MessagesManager, b.config.ResponseModelName)),
			)
		},
	}
	for _, fn := range add {
		if err := fn(); err != nil {
			logx.Error().Err(err).Msg("Error adding node")
			return fmt.Errorf("error adding node: %w", err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeTriageRouter},
		{nodes.NodeTriageEnd, compose.END},
		{nodes.NodeResponseAssembler, nodes.NodeResponseChatModel},
	}
	if len(b.config.Tools) > 0 {
		edges = append(edges, [2]string{nodes.NodeToolExecutor, nodes.NodeResponseChatModel})
	} else {
		edges = append(edges, [2]string{nodes.NodeResponseChatModel, compose.END})
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	triageBranch := compose.NewGraphBranch(
		nodes.NewTriageCondition(),
		map[string]bool{
			nodes.NodeResponseAssembler: true,
			nodes.NodeTriageEnd:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeTriageRouter, triageBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding triage branch")
		return fmt.Errorf("error adding triage branch: %w", err)
	}

	if len(b.config.Tools) == 0 {
		return nil
	}
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeResponseChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.RouteInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps), compose.WithGraphName("EmailAssistant"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
