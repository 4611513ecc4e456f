package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	providerName        = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
)

// contentModels is the subset of genai.Models used by the generator.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config describes a single Gemini model binding.
type Config struct {
	APIKey       string
	Model        string
	Temperature  float32
	MaxLogLength int
	Logger       *zap.Logger
}

// Generator wraps the Google GenAI client to provide prompt-to-JSON interactions.
type Generator struct {
	models      contentModels
	modelName   string
	temperature float32
	maxLogLen   int
	logger      *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ai.NewProviderError(providerName, ai.CategoryAuth, errors.New("GOOGLE_API_KEY not set"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, ai.NewProviderError(providerName, classify(err), fmt.Errorf("create genai client: %w", err))
	}

	return newGenerator(client.Models, cfg), nil
}

func newGenerator(models contentModels, cfg Config) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		models:      models,
		modelName:   model,
		temperature: cfg.Temperature,
		maxLogLen:   maxLogLen,
		logger:      logger.WithCommonFields(cfg.Logger, providerName, model),
	}
}

// Generate sends the prompt to Gemini and returns the concatenated textual response.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", ai.NewProviderError(providerName, classify(err), fmt.Errorf("request failed: %w", err))
	}

	output := collectText(resp)
	if output == "" {
		return "", ai.NewProviderError(providerName, ai.CategoryTransient, errors.New("gemini api returned empty response"))
	}

	g.logger.Debug("gemini generate content response",
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

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// classify maps Gemini API failures onto the shared categories. Gemini reports both
// per-minute limits and exhausted quotas as 429 RESOURCE_EXHAUSTED, so the message
// decides between them.
func classify(err error) ai.Category {
	apiErr, ok := asAPIError(err)
	if !ok {
		return ai.ClassifyMessage(err.Error())
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return ai.CategoryAuth
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		return ai.CategoryAuth
	case apiErr.Code == http.StatusTooManyRequests:
		if ai.ClassifyMessage(apiErr.Message) == ai.CategoryQuota {
			return ai.CategoryQuota
		}
		return ai.CategoryRateLimited
	default:
		return ai.CategoryTransient
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}

	return genai.APIError{}, false
}
