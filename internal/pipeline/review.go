package pipeline

import (
	"fmt"
	"strings"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	defaultReviewContext = "All LLM providers unavailable"
	reviewContextLimit   = 300

	ReasonNoKeys      = "Both Gemini and Groq API keys are not configured."
	ReasonNoGemini    = "Gemini API key not configured and Groq fallback unavailable."
	ReasonRateLimited = "API rate limits exceeded on all providers."
	ReasonNoGroq      = "Groq API key not configured (Gemini may have failed)."
	ReasonGeneric     = "LLM providers failed to respond."
)

// BuildManualReview returns the degraded decision used whenever no model verdict exists.
// The reason is picked from the error context in a fixed order.
func BuildManualReview(errorContext string) ai.MatchDecision {
	if strings.TrimSpace(errorContext) == "" {
		errorContext = defaultReviewContext
	}

	reason := reviewReason(errorContext)

	return ai.MatchDecision{
		MatchScore:       0,
		Recommendation:   ai.RecommendationManualReview,
		RequiresHuman:    true,
		Confidence:       0,
		ReasoningSummary: fmt.Sprintf("Unable to process automatically. %s Please review this resume manually.", reason),
		MatchingSkills:   []string{},
		MissingSkills:    []string{},
		Error:            utils.Truncate(errorContext, reviewContextLimit),
		ErrorReason:      reason,
	}
}

func reviewReason(errorContext string) string {
	lower := strings.ToLower(errorContext)
	google := strings.Contains(errorContext, "GOOGLE_API_KEY")
	groq := strings.Contains(errorContext, "GROQ_API_KEY")

	switch {
	case google && groq:
		return ReasonNoKeys
	case google:
		return ReasonNoGemini
	case strings.Contains(lower, "quota") || strings.Contains(lower, "rate"):
		return ReasonRateLimited
	case groq:
		return ReasonNoGroq
	default:
		return ReasonGeneric
	}
}
