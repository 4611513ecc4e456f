package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/provider"
	"github.com/spigell/resume-screener/internal/utils"
)

// Stage is one step of the screening pipeline. Run never fails: problems are recorded
// in the returned State.
type Stage interface {
	Name() string
	Run(ctx context.Context, s State) State
}

// Status describes a stage for diagnostics.
type Status struct {
	Name  string
	Title string
	Reads []string
}

const (
	stageErrorLimit  = 100
	decodeErrorLimit = 50
)

var stageTitles = map[string]string{
	StageResume: "Resume Analyzer",
	StageJD:     "JD Analyzer",
	StageMatch:  "Matching Agent",
}

// Describe lists the stages in execution order.
func Describe() []Status {
	return []Status{
		{Name: StageResume, Title: stageTitles[StageResume], Reads: []string{"resume_text"}},
		{Name: StageJD, Title: stageTitles[StageJD], Reads: []string{"job_description"}},
		{Name: StageMatch, Title: stageTitles[StageMatch], Reads: []string{"resume_analysis", "jd_analysis"}},
	}
}

func stageError(stage string, err error) string {
	title := stageTitles[stage]

	// A chain that also saw quota, rate or auth failures is reported as a whole so
	// those categories reach the manual review.
	var failed *provider.AllProvidersFailedError
	if errors.As(err, &failed) && !onlyTransient(failed.Categories()) {
		return fmt.Sprintf("%s Error: %s", title, utils.Truncate(err.Error(), stageErrorLimit))
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return fmt.Sprintf("%s Error: LLM returned invalid JSON - %s", title, utils.Truncate(decodeErr.Err.Error(), decodeErrorLimit))
	}

	return fmt.Sprintf("%s Error: %s", title, utils.Truncate(err.Error(), stageErrorLimit))
}

func onlyTransient(categories []ai.Category) bool {
	for _, c := range categories {
		if c != ai.CategoryTransient {
			return false
		}
	}
	return true
}

// infer sends prompt through the invoker and decodes the reply.
func infer[T any](ctx context.Context, inv *provider.Invoker, dec *decoder[T], prompt string) (T, provider.Usage, error) {
	return provider.Invoke(ctx, inv, func(ctx context.Context, client ai.Client) (T, error) {
		var zero T

		raw, err := client.Generate(ctx, prompt)
		if err != nil {
			return zero, err
		}

		out, err := dec.Decode(raw)
		if err != nil {
			// Model output varies between calls, so a bad reply is worth another attempt.
			return zero, ai.NewProviderError(client.Model(), ai.CategoryTransient, err)
		}
		return out, nil
	})
}

func stageUsage(stage string, u provider.Usage) ai.StageUsage {
	return ai.StageUsage{Stage: stage, Provider: u.Provider, Attempts: u.Attempts}
}

var (
	resumeDecoder = sync.OnceValues(func() (*decoder[ai.ResumeAnalysis], error) {
		return newDecoder[ai.ResumeAnalysis](StageResume)
	})
	jdDecoder = sync.OnceValues(func() (*decoder[ai.JobRequirements], error) {
		return newDecoder[ai.JobRequirements](StageJD)
	})
	matchDecoder = sync.OnceValues(func() (*decoder[matchOutput], error) {
		return newDecoder[matchOutput](StageMatch)
	})
)

func stageLogger(log *zap.Logger, stage string) *zap.Logger {
	return logger.WithStage(log, stage)
}
