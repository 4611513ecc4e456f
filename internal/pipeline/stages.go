package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/provider"
)

type resumeStage struct {
	invoker *provider.Invoker
	logger  *zap.Logger
}

func newResumeStage(inv *provider.Invoker, log *zap.Logger) Stage {
	return &resumeStage{invoker: inv, logger: stageLogger(log, StageResume)}
}

func (st *resumeStage) Name() string { return StageResume }

func (st *resumeStage) Run(ctx context.Context, s State) State {
	dec, err := resumeDecoder()
	if err != nil {
		return s.withError(StageResume, stageError(StageResume, err))
	}

	prompt, err := renderPrompt(resumePrompt, struct {
		ResumeText         string
		FormatInstructions string
	}{s.ResumeText, dec.instructions})
	if err != nil {
		return s.withError(StageResume, stageError(StageResume, err))
	}

	analysis, usage, err := infer(ctx, st.invoker, dec, prompt)
	if err != nil {
		st.logger.Warn("resume analysis failed", zap.Error(err))
		return s.withError(StageResume, stageError(StageResume, err))
	}

	if math.IsNaN(analysis.TotalYearsExperience) || analysis.TotalYearsExperience < 0 {
		analysis.TotalYearsExperience = 0
	}

	st.logger.Info("resume analyzed",
		zap.String("provider", usage.Provider),
		zap.Int("skills", len(analysis.Skills)),
	)

	s.ResumeAnalysis = &analysis
	s = s.withUsage(stageUsage(StageResume, usage))
	return s.advance(StageResume, PhaseResumeAnalyzed)
}

type jdStage struct {
	invoker *provider.Invoker
	logger  *zap.Logger
}

func newJDStage(inv *provider.Invoker, log *zap.Logger) Stage {
	return &jdStage{invoker: inv, logger: stageLogger(log, StageJD)}
}

func (st *jdStage) Name() string { return StageJD }

func (st *jdStage) Run(ctx context.Context, s State) State {
	dec, err := jdDecoder()
	if err != nil {
		return s.withError(StageJD, stageError(StageJD, err))
	}

	prompt, err := renderPrompt(jdPrompt, struct {
		JobDescription     string
		FormatInstructions string
	}{s.JobDescription, dec.instructions})
	if err != nil {
		return s.withError(StageJD, stageError(StageJD, err))
	}

	requirements, usage, err := infer(ctx, st.invoker, dec, prompt)
	if err != nil {
		st.logger.Warn("job description analysis failed", zap.Error(err))
		return s.withError(StageJD, stageError(StageJD, err))
	}

	st.logger.Info("job description analyzed",
		zap.String("provider", usage.Provider),
		zap.Int("required_skills", len(requirements.RequiredSkills)),
	)

	s.JobRequirements = &requirements
	s = s.withUsage(stageUsage(StageJD, usage))
	return s.advance(StageJD, PhaseJDAnalyzed)
}

// matchOutput is what the model is asked to produce in the matching stage.
type matchOutput struct {
	MatchScore       float64  `json:"match_score" jsonschema:"required" jsonschema_description:"Score from 0.0 to 1.0 indicating match quality"`
	Recommendation   string   `json:"recommendation" jsonschema:"required" jsonschema_description:"One of: 'Proceed to interview', 'Reject', or 'Needs manual review'"`
	RequiresHuman    bool     `json:"requires_human" jsonschema_description:"Whether a human should review this application"`
	Confidence       float64  `json:"confidence" jsonschema_description:"Confidence score from 0.0 to 1.0"`
	ReasoningSummary string   `json:"reasoning_summary" jsonschema_description:"Human-readable explanation of the recommendation"`
	MatchingSkills   []string `json:"matching_skills" jsonschema_description:"Skills from the resume that match the job requirements"`
	MissingSkills    []string `json:"missing_skills" jsonschema_description:"Required skills missing from the resume"`
}

// decision normalizes the model output into the closed decision contract.
func (o matchOutput) decision() ai.MatchDecision {
	recommendation, known := normalizeRecommendation(o.Recommendation)

	return ai.MatchDecision{
		MatchScore:       unitInterval(o.MatchScore),
		Recommendation:   recommendation,
		RequiresHuman:    o.RequiresHuman || !known,
		Confidence:       unitInterval(o.Confidence),
		ReasoningSummary: strings.TrimSpace(o.ReasoningSummary),
		MatchingSkills:   cleanList(o.MatchingSkills),
		MissingSkills:    cleanList(o.MissingSkills),
	}
}

// unitInterval maps a score onto [0,1]. Values in [2,100] are read as percentages;
// anything just above 1 is an overshoot and clamps to 1.
func unitInterval(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v <= 1:
		return v
	case v < 2 || v > 100:
		return 1
	default:
		return v / 100
	}
}

func normalizeRecommendation(raw string) (ai.Recommendation, bool) {
	r := ai.Recommendation(strings.TrimSpace(raw))
	switch r {
	case ai.RecommendationProceed, ai.RecommendationReject, ai.RecommendationNeedsReview:
		return r, true
	}

	lower := strings.ToLower(string(r))
	switch {
	case strings.Contains(lower, "proceed") || strings.Contains(lower, "interview"):
		return ai.RecommendationProceed, true
	case strings.Contains(lower, "reject"):
		return ai.RecommendationReject, true
	case strings.Contains(lower, "manual") || strings.Contains(lower, "review"):
		return ai.RecommendationNeedsReview, true
	default:
		return ai.RecommendationNeedsReview, false
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

type matchStage struct {
	invoker *provider.Invoker
	logger  *zap.Logger
}

func newMatchStage(inv *provider.Invoker, log *zap.Logger) Stage {
	return &matchStage{invoker: inv, logger: stageLogger(log, StageMatch)}
}

func (st *matchStage) Name() string { return StageMatch }

func (st *matchStage) Run(ctx context.Context, s State) State {
	if s.Failed() {
		first := s.Errors
		if len(first) > 3 {
			first = first[:3]
		}
		st.logger.Warn("previous stages failed, skipping inference", zap.Strings("errors", first))

		review := BuildManualReview("Agent pipeline errors: " + strings.Join(first, "; "))
		return st.settle(s, review)
	}

	if s.ResumeAnalysis == nil || s.JobRequirements == nil {
		return st.fail(s, errors.New("analyses are missing"))
	}

	dec, err := matchDecoder()
	if err != nil {
		return st.fail(s, err)
	}

	resumeJSON, err := json.MarshalIndent(s.ResumeAnalysis, "", "  ")
	if err != nil {
		return st.fail(s, err)
	}
	jdJSON, err := json.MarshalIndent(s.JobRequirements, "", "  ")
	if err != nil {
		return st.fail(s, err)
	}

	prompt, err := renderPrompt(matchingPrompt, struct {
		ResumeAnalysis     string
		JobRequirements    string
		FormatInstructions string
	}{string(resumeJSON), string(jdJSON), dec.instructions})
	if err != nil {
		return st.fail(s, err)
	}

	out, usage, err := infer(ctx, st.invoker, dec, prompt)
	if err != nil {
		st.logger.Warn("matching failed", zap.Error(err))
		return st.fail(s, err)
	}

	decision := out.decision()
	st.logger.Info("match decided",
		zap.String("provider", usage.Provider),
		zap.Float64("match_score", decision.MatchScore),
		zap.String("recommendation", string(decision.Recommendation)),
	)

	s = s.withUsage(stageUsage(StageMatch, usage))
	s = st.settle(s, decision)
	return s.advance(StageMatch, PhaseMatchDecided)
}

func (st *matchStage) fail(s State, err error) State {
	msg := stageError(StageMatch, err)
	s = s.withError(StageMatch, msg)
	return st.settle(s, BuildManualReview(msg))
}

func (st *matchStage) settle(s State, decision ai.MatchDecision) State {
	full := decision
	final := decision
	s.Matching = &full
	s.FinalOutput = &final
	s.CurrentStage = StageMatch
	return s
}
