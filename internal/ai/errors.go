package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the closed set of failure classes the invoker acts upon.
type Category int

const (
	// CategoryTransient is retried in place against the same provider.
	CategoryTransient Category = iota
	// CategoryRateLimited abandons the provider for the current call.
	CategoryRateLimited
	// CategoryQuota abandons the provider (or its whole vendor) without delay.
	CategoryQuota
	// CategoryAuth is never retried.
	CategoryAuth
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryQuota:
		return "quota_exhausted"
	case CategoryAuth:
		return "authentication"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ProviderError is returned by inference clients with an explicit category attached.
type ProviderError struct {
	Provider string
	Category Category
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with the given category. A nil err yields nil.
func NewProviderError(provider string, category Category, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Category: category, Err: err}
}

// Classify returns the category carried by err, falling back to ClassifyMessage for
// errors raised by libraries that do not expose typed failures.
func Classify(err error) Category {
	if err == nil {
		return CategoryTransient
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Category
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage maps a raw error message to a category. Quota wording is checked
// before rate limiting since vendors report both with HTTP 429.
func ClassifyMessage(msg string) Category {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "deadline exceeded"):
		return CategoryTransient
	case strings.Contains(lower, "quota") || strings.Contains(lower, "exceeded"):
		return CategoryQuota
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") || strings.Contains(lower, "ratelimit"):
		return CategoryRateLimited
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "api key not valid"):
		return CategoryAuth
	default:
		return CategoryTransient
	}
}
