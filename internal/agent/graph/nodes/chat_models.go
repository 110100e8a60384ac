package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"github.com/email-assistant-core/server/internal/agent/model"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	Triage     *model.TriageModelConfig
	Classifier *model.ClassifierModelConfig
	Response   *model.ResponseModelConfig
}

// ChatModels holds the triage, classifier and response chat models
type ChatModels struct {
	Triage     einomodel.ToolCallingChatModel
	Classifier einomodel.ToolCallingChatModel
	Response   einomodel.ToolCallingChatModel

	TriageModelName     string
	ClassifierModelName string
	ResponseModelName   string
}

// NewChatModels creates all chat models. The classifier runs on Ollama when
// its provider says so; everything else shares one Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Triage == nil || config.Classifier == nil || config.Response == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	triage, err := newGeminiModel(ctx, client, config.Triage.Model, config.Triage.Temperature, config.Triage.MaxTokens, config.Triage.ThinkingBudget)
	if err != nil {
		return nil, fmt.Errorf("error creating triage model: %w", err)
	}

	var classifier einomodel.ToolCallingChatModel
	switch config.Classifier.Provider {
	case ProviderGemini, "":
		classifier, err = newGeminiModel(ctx, client, config.Classifier.Model, config.Classifier.Temperature, config.Classifier.MaxTokens, config.Classifier.ThinkingBudget)
	case ProviderOllama:
		classifier, err = newOllamaModel(ctx, config.Classifier)
	default:
		err = fmt.Errorf("unknown classifier provider %q", config.Classifier.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	response, err := newGeminiModel(ctx, client, config.Response.Model, config.Response.Temperature, config.Response.MaxTokens, config.Response.ThinkingBudget)
	if err != nil {
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	logx.Debug().
		Str("triage_model", config.Triage.Model).
		Str("classifier_provider", config.Classifier.Provider).
		Str("classifier_model", config.Classifier.Model).
		Str("response_model", config.Response.Model).
		Msg("Chat models ready")

	return &ChatModels{
		Triage:              triage,
		Classifier:          classifier,
		Response:            response,
		TriageModelName:     config.Triage.Model,
		ClassifierModelName: config.Classifier.Model,
		ResponseModelName:   config.Response.Model,
	}, nil
}

func newGeminiModel(ctx context.Context, client *genai.Client, name string, temperature float32, maxTokens, thinkingBudget int) (*gemini.ChatModel, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:         client,
		Model:          name,
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
		ThinkingConfig: thinkingConfig(thinkingBudget),
	})
	if err != nil {
		logx.Error().Err(err).Str("model", name).Msg("Error creating Gemini model")
		return nil, err
	}
	return cm, nil
}

// thinkingConfig caps Gemini thinking tokens, which count against MaxTokens.
// Zero turns thinking off; a negative budget lets the model decide.
func thinkingConfig(budget int) *genai.ThinkingConfig {
	if budget < 0 {
		return &genai.ThinkingConfig{IncludeThoughts: false}
	}
	return &genai.ThinkingConfig{
		IncludeThoughts: false,
		ThinkingBudget:  genai.Ptr(int32(budget)),
	}
}

func newOllamaModel(ctx context.Context, cfg *model.ClassifierModelConfig) (*ollama.ChatModel, error) {
	cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Options: &api.Options{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	})
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("Error creating Ollama model")
		return nil, err
	}
	return cm, nil
}
