package groq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	providerName        = "groq"
	defaultModel        = "llama-3.3-70b-versatile"
	defaultBaseURL      = "https://api.groq.com/openai/v1"
	defaultTimeout      = 60 * time.Second
	defaultMaxLogLength = 200
	systemPrompt        = "You are a precise HR screening assistant. Reply with a single JSON object and nothing else."
)

// Config describes a Groq model binding. Groq exposes an OpenAI-compatible API.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	Timeout      time.Duration
	MaxLogLength int
	Logger       *zap.Logger
}

// Generator sends prompts to Groq through the eino chat model abstraction.
type Generator struct {
	chat      model.BaseChatModel
	modelName string
	maxLogLen int
	logger    *zap.Logger
}

// NewGenerator creates a Generator backed by the eino OpenAI chat model.
func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ai.NewProviderError(providerName, ai.CategoryAuth, errors.New("GROQ_API_KEY not set"))
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultModel
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	temperature := cfg.Temperature
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       modelName,
		Temperature: &temperature,
		Timeout:     timeout,
	})
	if err != nil {
		return nil, ai.NewProviderError(providerName, ai.ClassifyMessage(err.Error()), fmt.Errorf("create chat model: %w", err))
	}

	cfg.Model = modelName
	return newGenerator(chat, cfg), nil
}

func newGenerator(chat model.BaseChatModel, cfg Config) *Generator {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultModel
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		chat:      chat,
		modelName: modelName,
		maxLogLen: maxLogLen,
		logger:    logger.WithCommonFields(cfg.Logger, providerName, modelName),
	}
}

// Generate sends the prompt as a user message and returns the assistant reply.
// The OpenAI-compatible SDK does not expose typed errors through eino, so failures
// are classified from their message.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.chat == nil {
		return "", errors.New("groq generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("groq chat completion request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}

	resp, err := g.chat.Generate(ctx, messages)
	if err != nil {
		return "", ai.NewProviderError(providerName, ai.ClassifyMessage(err.Error()), fmt.Errorf("chat completion: %w", err))
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ai.NewProviderError(providerName, ai.CategoryTransient, errors.New("groq api returned empty response"))
	}

	output := strings.TrimSpace(resp.Content)

	g.logger.Debug("groq chat completion response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
