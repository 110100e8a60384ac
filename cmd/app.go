package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/email-assistant-core/server/internal/agent/graph"
	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/agent/repo"
	"github.com/email-assistant-core/server/internal/gateway/google"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg      *AppConfig
	rdb      *redis.Client
	memory   *repo.RedisMemoryStore
	examples *repo.ExampleStore
	runner   graph.Runner
}

// newStores connects Redis and builds the memory and example stores.
func newStores(ctx context.Context, cfg *AppConfig) (*app, error) {
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	logx.Debug().Msg("Connected to Redis")

	memory := repo.NewRedisMemoryStore(rdb)
	return &app{
		cfg:      cfg,
		rdb:      rdb,
		memory:   memory,
		examples: repo.NewExampleStore(memory, cfg.Memory.ExampleLimit),
	}, nil
}

// newApp wires Redis, Google and the assistant graph from cfg.
func newApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	a, err := newStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
	}

	mailer, calendar, err := newGoogleClients(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	runner, err := graph.BuildAssistantGraph(ctx, graph.Config{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		TriageModel:      cfg.Triage,
		ClassifierModel:  cfg.Classifier,
		ResponseModel:    cfg.Response,
		Profile:          cfg.Profile,
		Rules:            cfg.Rules,
		Agent:            cfg.Agent,
		Conversation:     cfg.Conversation,
		Memory:           cfg.Memory,
		ConversationRepo: repo.NewRedisConversationRepository(a.rdb, ttl),
		MemoryStore:      a.memory,
		Examples:         a.examples,
		Mailer:           mailer,
		Calendar:         calendar,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	a.runner = runner
	return a, nil
}

// newGoogleClients returns nil collaborators when no credentials or token
// exist yet, so the assistant runs without the mail and calendar tools.
func newGoogleClients(ctx context.Context, cfg *AppConfig) (model.Mailer, model.Calendar, error) {
	httpClient, err := google.NewHTTPClient(ctx, cfg.Google)
	if errors.Is(err, google.ErrNoToken) || errors.Is(err, fs.ErrNotExist) {
		logx.Warn().Err(err).Msg("Google integration disabled; write_email and calendar tools are unavailable")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	from := cfg.Google.From
	if from == "" {
		from = cfg.Profile.Email
	}
	gmail, err := google.NewGmailClient(ctx, from, cfg.Google.SendPerMinute, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, nil, err
	}
	calendar, err := google.NewCalendarClient(ctx, cfg.Calendar, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, nil, err
	}
	return gmail, calendar, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
}
