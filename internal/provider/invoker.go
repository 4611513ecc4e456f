package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	DefaultMaxRetries = 2
	DefaultBackoff    = time.Second
)

// QuotaPolicy names how far a quota failure reaches.
type QuotaPolicy string

const (
	// QuotaSkipVendor drops every remaining variant of the exhausted vendor.
	QuotaSkipVendor QuotaPolicy = "vendor"
	// QuotaSkipProvider drops only the descriptor that reported the quota.
	QuotaSkipProvider QuotaPolicy = "provider"
)

func ParseQuotaPolicy(s string) (QuotaPolicy, error) {
	switch QuotaPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", QuotaSkipVendor:
		return QuotaSkipVendor, nil
	case QuotaSkipProvider:
		return QuotaSkipProvider, nil
	default:
		return "", fmt.Errorf("unknown quota policy %q (want %q or %q)", s, QuotaSkipVendor, QuotaSkipProvider)
	}
}

// Options tune an Invoker. Zero values fall back to the defaults.
type Options struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	Backoff        time.Duration `mapstructure:"backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Temperature    float32       `mapstructure:"temperature"`
	QuotaPolicy    QuotaPolicy   `mapstructure:"quota_policy"`
	// NoBackoff disables waiting between attempts.
	NoBackoff bool `mapstructure:"-"`
}

// Invoker runs a transform against the chain with retry and fallback.
type Invoker struct {
	chain          Chain
	maxRetries     int
	backoff        time.Duration
	attemptTimeout time.Duration
	temperature    float32
	quotaPolicy    QuotaPolicy
	logger         *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
}

func NewInvoker(chain Chain, opts Options, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if opts.NoBackoff {
		backoff = 0
	}

	policy := opts.QuotaPolicy
	if policy == "" {
		policy = QuotaSkipVendor
	}

	return &Invoker{
		chain:          chain,
		maxRetries:     maxRetries,
		backoff:        backoff,
		attemptTimeout: opts.AttemptTimeout,
		temperature:    opts.Temperature,
		quotaPolicy:    policy,
		logger:         log,
		wait:           utils.WaitFor,
	}
}

func (inv *Invoker) Chain() Chain {
	return inv.chain
}

// Transform turns a client into a stage result, usually generate then decode.
type Transform[T any] func(ctx context.Context, client ai.Client) (T, error)

// Usage records which descriptor satisfied a call.
type Usage struct {
	Provider string
	Vendor   string
	Model    string
	// Attempts counts every attempt spent on the call, failed ones included.
	Attempts int
}

// Invoke walks the chain in order and returns the first successful result.
//
// Quota failures skip the rest of the provider (or vendor, per QuotaPolicy) without
// waiting. Rate limits and authentication failures abandon the provider, the former
// after a backoff. Anything else is retried on the same provider after a backoff.
func Invoke[T any](ctx context.Context, inv *Invoker, fn Transform[T]) (T, Usage, error) {
	var zero T

	failed := &AllProvidersFailedError{Missing: inv.chain.Missing}
	skipped := make(map[string]bool)

	for _, d := range inv.chain.Descriptors {
		if skipped[d.Vendor] {
			inv.logger.Debug("skipping provider after vendor quota exhaustion",
				zap.String("provider", d.DisplayName()))
			continue
		}

		log := logger.WithCommonFields(inv.logger, d.Vendor, d.Model)

	attempts:
		for attempt := 1; attempt <= inv.maxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				failed.record(d, attempt, ai.CategoryTransient, err)
				return zero, Usage{}, failed
			}

			client, err := d.NewClient(ctx, inv.temperature, log)
			if err != nil {
				category := ai.Classify(err)
				failed.record(d, attempt, category, err)
				log.Warn("provider client construction failed",
					zap.String("category", category.String()),
					zap.Error(err),
				)
				break attempts
			}

			result, err := runAttempt(ctx, inv.attemptTimeout, client, fn)
			if err == nil {
				usage := Usage{Provider: d.DisplayName(), Vendor: d.Vendor, Model: d.Model, Attempts: failed.Attempts + 1}
				log.Info("provider call succeeded", zap.Int("attempt", attempt), zap.Int("attempts_total", usage.Attempts))
				return result, usage, nil
			}

			category := ai.Classify(err)
			failed.record(d, attempt, category, err)
			log.Warn("provider call failed",
				zap.Int("attempt", attempt),
				zap.String("category", category.String()),
				zap.String("error", utils.TruncateForLog(err.Error(), attemptErrorLimit)),
			)

			switch category {
			case ai.CategoryQuota:
				if inv.quotaPolicy == QuotaSkipVendor {
					skipped[d.Vendor] = true
				}
				break attempts
			case ai.CategoryRateLimited:
				if werr := inv.wait(ctx, inv.backoff); werr != nil {
					failed.record(d, attempt, ai.CategoryTransient, werr)
					return zero, Usage{}, failed
				}
				break attempts
			case ai.CategoryAuth:
				break attempts
			default:
				if attempt < inv.maxRetries {
					if werr := inv.wait(ctx, inv.backoff); werr != nil {
						failed.record(d, attempt, ai.CategoryTransient, werr)
						return zero, Usage{}, failed
					}
				}
			}
		}
	}

	if failed.Attempts == 0 {
		inv.logger.Warn("no inference providers available", zap.Strings("missing", failed.Missing))
	} else {
		inv.logger.Error("all providers failed", zap.Int("attempts", failed.Attempts))
	}

	return zero, Usage{}, failed
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, client ai.Client, fn Transform[T]) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, client)
}
