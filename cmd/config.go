package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/email-assistant-core/server/internal/agent/model"
	"github.com/email-assistant-core/server/internal/core"
	"github.com/email-assistant-core/server/internal/gateway/google"
	"github.com/email-assistant-core/server/internal/server"
	logx "github.com/email-assistant-core/server/pkg/logger"
	pkgredis "github.com/email-assistant-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis  pkgredis.Config
	Google google.Config
	Server server.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Triage       model.TriageModelConfig
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	Profile      model.Profile
	Rules        model.TriageRules
	Agent        model.AgentConfig
	Conversation model.ConversationConfig
	Memory       model.MemoryConfig
	Calendar     model.CalendarConfig
}

// loadEnvFile loads envFile into the process environment; a missing file is not an error.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// loadConfig reads envFile when it exists, binds the environment and
// initialises logging.
func loadConfig(envFile string) (*AppConfig, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	return &cfg, nil
}
