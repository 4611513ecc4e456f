package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/provider"
	"github.com/spigell/resume-screener/internal/secrets"
)

// Pipeline screens one resume against one job description per Run call. It holds
// configuration only and is safe for concurrent use.
type Pipeline struct {
	catalog []provider.Vendor
	lookup  secrets.LookupFunc
	options provider.Options
	logger  *zap.Logger

	stages func(inv *provider.Invoker, log *zap.Logger) []Stage
}

type Option func(*Pipeline)

// WithCatalog replaces the vendor catalog the chain is built from.
func WithCatalog(catalog []provider.Vendor) Option {
	return func(p *Pipeline) {
		p.catalog = catalog
	}
}

// WithLookup changes where credentials are read from. Defaults to os.LookupEnv.
func WithLookup(lookup secrets.LookupFunc) Option {
	return func(p *Pipeline) {
		p.lookup = lookup
	}
}

func WithInvokerOptions(opts provider.Options) Option {
	return func(p *Pipeline) {
		p.options = opts
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog: provider.DefaultCatalog(provider.CatalogConfig{}),
		lookup:  os.LookupEnv,
		logger:  zap.NewNop(),
		stages:  defaultStages,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

func defaultStages(inv *provider.Invoker, log *zap.Logger) []Stage {
	return []Stage{
		newResumeStage(inv, log),
		newJDStage(inv, log),
		newMatchStage(inv, log),
	}
}

// Chain reports the providers a run started now would use.
func (p *Pipeline) Chain() provider.Chain {
	return provider.BuildChain(p.catalog, p.lookup)
}

// Run always returns a complete decision. When no model verdict can be produced the
// decision is a manual review with RequiresHuman set. Input length is not checked.
func (p *Pipeline) Run(ctx context.Context, resumeText, jobDescription string, verbose bool) (decision ai.MatchDecision) {
	log := logger.WithRunID(p.logger, uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline failed", zap.Any("panic", r))
			decision = BuildManualReview(fmt.Sprintf("Pipeline failed: %v", r))
		}
	}()

	chain := p.Chain()
	log.Info("provider chain built",
		zap.Int("providers", chain.Len()),
		zap.Strings("missing_credentials", chain.Missing),
	)

	inv := provider.NewInvoker(chain, p.options, log)

	state := NewState(resumeText, jobDescription)
	for _, stage := range p.stages(inv, log) {
		state = stage.Run(ctx, state)
		log.Debug("stage step",
			zap.String("name", stage.Name()),
			zap.String("phase", string(state.Phase)),
			zap.Int("errors", len(state.Errors)),
		)
	}

	return p.finalize(log, state, verbose)
}

func (p *Pipeline) finalize(log *zap.Logger, state State, verbose bool) ai.MatchDecision {
	var decision ai.MatchDecision
	if state.FinalOutput != nil {
		decision = *state.FinalOutput
	} else {
		errs := state.Errors
		if len(errs) == 0 {
			errs = []string{"Unknown error"}
		}
		decision = BuildManualReview(fmt.Sprintf("No output generated. Errors: [%s]", strings.Join(errs, ", ")))
	}

	if state.Failed() {
		log.Warn("pipeline finished with errors",
			zap.Strings("errors", state.Errors),
			zap.String("recommendation", string(decision.Recommendation)),
		)
	} else {
		log.Info("pipeline finished",
			zap.Float64("match_score", decision.MatchScore),
			zap.String("recommendation", string(decision.Recommendation)),
		)
	}

	if verbose {
		errs := make([]string, len(state.Errors))
		copy(errs, state.Errors)
		decision.Details = &ai.Details{
			ResumeAnalysis:     state.ResumeAnalysis,
			JDAnalysis:         state.JobRequirements,
			FullMatchingResult: state.Matching,
			Errors:             errs,
			Providers:          state.Usage,
		}
	}

	return decision
}
