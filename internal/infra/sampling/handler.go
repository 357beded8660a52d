// Package sampling answers sampling/createMessage requests with a real
// model provider instead of canned data.
package sampling

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"mcpgw/internal/domain"
)

// Config selects and authenticates the completion model.
type Config struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"apiKey"`
	APIKeyEnvVar string `mapstructure:"apiKeyEnvVar"`
	BaseURL      string `mapstructure:"baseUrl"`
}

// Handler delegates sampling requests to a chat model.
type Handler struct {
	model  model.ToolCallingChatModel
	logger *zap.Logger
}

func NewHandler(ctx context.Context, cfg Config, logger *zap.Logger) (*Handler, error) {
	chatModel, err := initializeModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		model:  chatModel,
		logger: logger.Named("sampling"),
	}, nil
}

// CreateMessage generates one completion for the request.
func (h *Handler) CreateMessage(ctx context.Context, params *domain.SamplingRequest) (*domain.SamplingResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	messages, err := toMessages(params)
	if err != nil {
		return nil, err
	}

	var opts []model.Option
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(params.Temperature)))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(int(params.MaxTokens)))
	}

	response, err := h.model.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("sampling generate: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("sampling response is nil")
	}

	result := &domain.SamplingResult{
		Role: "assistant",
		Content: domain.SamplingContent{
			Type: "text",
			Text: response.Content,
		},
	}
	if response.ResponseMeta != nil {
		result.StopReason = response.ResponseMeta.FinishReason
	}
	return result, nil
}

func toMessages(params *domain.SamplingRequest) ([]*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(params.Messages)+1)
	if strings.TrimSpace(params.SystemPrompt) != "" {
		messages = append(messages, schema.SystemMessage(params.SystemPrompt))
	}
	for _, msg := range params.Messages {
		contentType := strings.TrimSpace(msg.Content.Type)
		if contentType == "" {
			contentType = "text"
		}
		if contentType != "text" {
			return nil, fmt.Errorf("unsupported content type: %s", contentType)
		}
		text := msg.Content.Text
		switch strings.TrimSpace(msg.Role) {
		case "user":
			messages = append(messages, schema.UserMessage(text))
		case "assistant":
			messages = append(messages, schema.AssistantMessage(text, nil))
		case "system":
			messages = append(messages, schema.SystemMessage(text))
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}
	return messages, nil
}

func initializeModel(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		envVar := strings.TrimSpace(cfg.APIKeyEnvVar)
		if envVar == "" {
			return nil, fmt.Errorf("API key is required: set sampling.apiKey or sampling.apiKeyEnvVar")
		}
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in env var %s", envVar)
		}
	}

	switch cfg.Provider {
	case "openai", "":
		modelCfg := &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: apiKey,
		}
		if cfg.BaseURL != "" {
			modelCfg.BaseURL = cfg.BaseURL
		}
		return openai.NewChatModel(ctx, modelCfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
