package openai

import (
	"context"
	"strings"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"investly/internal/domain"
)

const advisorSystemPrompt = `You are a cautious cryptocurrency investment assistant.
Give short, practical guidance grounded in risk management.
Never promise returns and always remind the user that crypto assets are volatile.`

// AdvisorConfig holds the chat model settings for free-form advice
type AdvisorConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Advisor implements domain.Advisor with an eino chat model
type Advisor struct {
	chat generator
}

// NewAdvisor builds an Advisor backed by an OpenAI-compatible chat model
func NewAdvisor(ctx context.Context, cfg AdvisorConfig) (*Advisor, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindConfiguration, "advisor API key is required", nil)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		BaseURL:   baseURL,
		APIKey:    cfg.APIKey,
		Model:     modelName,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "create advisor chat model", err)
	}
	return &Advisor{chat: chatModel}, nil
}

// Advise answers a free-form investment question
func (a *Advisor) Advise(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.NewError(domain.KindInvalidArgument, "prompt is required", nil)
	}

	reply, err := a.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(advisorSystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", domain.NewError(domain.KindNetworkFailure, "generate advice", err)
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return "", domain.NewError(domain.KindProviderRejected, "advisor returned an empty reply", nil)
	}
	return strings.TrimSpace(reply.Content), nil
}
