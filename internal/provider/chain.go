package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/secrets"
	"github.com/spigell/resume-screener/internal/utils"
)

// ClientSpec carries everything a factory needs to build one client.
type ClientSpec struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// Factory constructs a fresh inference client for a single model variant.
type Factory func(ctx context.Context, spec ClientSpec) (ai.Client, error)

// Vendor groups the model variants served behind one credential.
type Vendor struct {
	Name          string
	CredentialEnv string
	// Variants are ordered from most to least capable.
	Variants []string
	Factory  Factory
}

// Descriptor is one entry of the chain: a vendor bound to a single model.
type Descriptor struct {
	Vendor        string
	Model         string
	CredentialEnv string
	Position      int

	apiKey  string
	factory Factory
}

// DisplayName renders the descriptor the way it appears in logs and errors.
func (d Descriptor) DisplayName() string {
	return fmt.Sprintf("%s (%s)", d.Vendor, d.Model)
}

// NewClient builds a fresh client for this descriptor.
func (d Descriptor) NewClient(ctx context.Context, temperature float32, logger *zap.Logger) (ai.Client, error) {
	if d.factory == nil {
		return nil, fmt.Errorf("%s has no client factory", d.DisplayName())
	}
	return d.factory(ctx, ClientSpec{
		APIKey:      d.apiKey,
		Model:       d.Model,
		Temperature: temperature,
		Logger:      logger,
	})
}

// Chain is the ordered, availability-filtered list of descriptors for one invocation.
// An empty chain is valid and means no attempt can be made.
type Chain struct {
	Descriptors []Descriptor
	// Missing lists the credentials that were not configured, in catalog order.
	Missing []string
}

func (c Chain) Len() int {
	return len(c.Descriptors)
}

func (c Chain) Empty() bool {
	return len(c.Descriptors) == 0
}

// BuildChain probes the catalog against the current environment. Vendors keep their
// catalog order and each contributes its variants in declared order.
func BuildChain(catalog []Vendor, lookup secrets.LookupFunc) Chain {
	var chain Chain

	for _, vendor := range catalog {
		key, err := secrets.FromEnv(lookup, vendor.CredentialEnv)
		if err != nil {
			chain.Missing = append(chain.Missing, vendor.CredentialEnv)
			continue
		}

		for _, variant := range vendor.Variants {
			variant = strings.TrimSpace(variant)
			if variant == "" {
				continue
			}
			chain.Descriptors = append(chain.Descriptors, Descriptor{
				Vendor:        vendor.Name,
				Model:         variant,
				CredentialEnv: vendor.CredentialEnv,
				Position:      len(chain.Descriptors),
				apiKey:        key,
				factory:       vendor.Factory,
			})
		}
	}

	return chain
}

// FirstClient returns a client from the first descriptor that can construct one.
// Authentication failures stop the search immediately.
func (c Chain) FirstClient(ctx context.Context, temperature float32, logger *zap.Logger) (ai.Client, Descriptor, error) {
	failed := &AllProvidersFailedError{Missing: c.Missing}

	for _, d := range c.Descriptors {
		client, err := d.NewClient(ctx, temperature, logger)
		if err == nil {
			return client, d, nil
		}

		category := ai.Classify(err)
		if category == ai.CategoryAuth {
			return nil, d, &AuthenticationError{Provider: d.DisplayName(), Err: err}
		}

		failed.record(d, 1, category, err)
	}

	return nil, Descriptor{}, failed
}

// AuthenticationError reports rejected or missing credentials found while building a client.
type AuthenticationError struct {
	Provider string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

const (
	keptAttemptErrors = 3
	attemptErrorLimit = 100
)

// AllProvidersFailedError is returned once every descriptor has been exhausted.
// Only the most recent attempt summaries are kept.
type AllProvidersFailedError struct {
	Attempts int
	Errors   []string
	Missing  []string

	categories []ai.Category
	last       error
}

func (e *AllProvidersFailedError) record(d Descriptor, attempt int, category ai.Category, err error) {
	e.Attempts++
	e.last = err

	summary := fmt.Sprintf("%s (attempt %d): %s", d.DisplayName(), attempt, utils.Truncate(err.Error(), attemptErrorLimit))
	e.Errors = append(e.Errors, summary)
	if len(e.Errors) > keptAttemptErrors {
		e.Errors = append([]string(nil), e.Errors[len(e.Errors)-keptAttemptErrors:]...)
	}

	for _, seen := range e.categories {
		if seen == category {
			return
		}
	}
	e.categories = append(e.categories, category)
}

func (e *AllProvidersFailedError) Error() string {
	if e.Attempts == 0 {
		if len(e.Missing) == 0 {
			return "no inference providers available"
		}
		return fmt.Sprintf("no inference providers available: %s not set", strings.Join(e.Missing, ", "))
	}

	names := make([]string, 0, len(e.categories))
	for _, c := range e.categories {
		names = append(names, c.String())
	}

	return fmt.Sprintf("all providers failed (%s) after %d attempts: %s",
		strings.Join(names, ", "), e.Attempts, strings.Join(e.Errors, "; "))
}

// Categories lists the failure categories seen, in first-seen order.
func (e *AllProvidersFailedError) Categories() []ai.Category {
	return append([]ai.Category(nil), e.categories...)
}

// Unwrap exposes the error of the final attempt.
func (e *AllProvidersFailedError) Unwrap() error {
	return e.last
}

// IsAllProvidersFailed reports whether err carries an exhausted chain.
func IsAllProvidersFailed(err error) bool {
	var target *AllProvidersFailedError
	return errors.As(err, &target)
}
