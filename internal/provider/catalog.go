package provider

import (
	"context"
	"time"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/ai/gemini"
	"github.com/spigell/resume-screener/internal/ai/groq"
)

const (
	VendorGemini = "Gemini"
	VendorGroq   = "Groq"

	GeminiCredential = "GOOGLE_API_KEY"
	GroqCredential   = "GROQ_API_KEY"
)

var (
	DefaultGeminiModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"}
	DefaultGroqModels   = []string{"llama-3.3-70b-versatile"}
)

// CatalogConfig overrides the vendor variants and transport settings.
type CatalogConfig struct {
	GeminiModels []string      `mapstructure:"gemini_models"`
	GroqModels   []string      `mapstructure:"groq_models"`
	GroqBaseURL  string        `mapstructure:"groq_base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxLogLength int           `mapstructure:"max_log_length"`
}

// DefaultCatalog lists Gemini first and Groq strictly last.
func DefaultCatalog(cfg CatalogConfig) []Vendor {
	geminiModels := cfg.GeminiModels
	if len(geminiModels) == 0 {
		geminiModels = DefaultGeminiModels
	}

	groqModels := cfg.GroqModels
	if len(groqModels) == 0 {
		groqModels = DefaultGroqModels
	}

	return []Vendor{
		{
			Name:          VendorGemini,
			CredentialEnv: GeminiCredential,
			Variants:      append([]string(nil), geminiModels...),
			Factory: func(ctx context.Context, spec ClientSpec) (ai.Client, error) {
				g, err := gemini.NewGenerator(ctx, gemini.Config{
					APIKey:       spec.APIKey,
					Model:        spec.Model,
					Temperature:  spec.Temperature,
					MaxLogLength: cfg.MaxLogLength,
					Logger:       spec.Logger,
				})
				if err != nil {
					return nil, err
				}
				return g, nil
			},
		},
		{
			Name:          VendorGroq,
			CredentialEnv: GroqCredential,
			Variants:      append([]string(nil), groqModels...),
			Factory: func(ctx context.Context, spec ClientSpec) (ai.Client, error) {
				g, err := groq.NewGenerator(ctx, groq.Config{
					APIKey:       spec.APIKey,
					BaseURL:      cfg.GroqBaseURL,
					Model:        spec.Model,
					Temperature:  spec.Temperature,
					Timeout:      cfg.Timeout,
					MaxLogLength: cfg.MaxLogLength,
					Logger:       spec.Logger,
				})
				if err != nil {
					return nil, err
				}
				return g, nil
			},
		},
	}
}
