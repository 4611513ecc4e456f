package pipeline

import (
	"github.com/spigell/resume-screener/internal/ai"
)

// Phase is the position of a run in the screening state machine.
type Phase string

const (
	PhaseStart          Phase = "start"
	PhaseResumeAnalyzed Phase = "resume_analyzed"
	PhaseJDAnalyzed     Phase = "jd_analyzed"
	PhaseMatchDecided   Phase = "match_decided"
	// PhaseDegraded is sticky: once entered no later stage leaves it.
	PhaseDegraded Phase = "degraded"
)

const (
	StageStart  = "start"
	StageResume = "resume_analyzer"
	StageJD     = "jd_analyzer"
	StageMatch  = "matching_agent"
)

// State is threaded through the stages by value. Every stage returns a new State;
// slices are copied before they grow so two states never share a backing array.
type State struct {
	ResumeText     string
	JobDescription string

	ResumeAnalysis  *ai.ResumeAnalysis
	JobRequirements *ai.JobRequirements
	Matching        *ai.MatchDecision
	FinalOutput     *ai.MatchDecision

	Errors       []string
	CurrentStage string
	Phase        Phase
	Usage        []ai.StageUsage
}

func NewState(resumeText, jobDescription string) State {
	return State{
		ResumeText:     resumeText,
		JobDescription: jobDescription,
		CurrentStage:   StageStart,
		Phase:          PhaseStart,
	}
}

func (s State) Failed() bool {
	return len(s.Errors) > 0
}

func (s State) withError(stage, msg string) State {
	errs := make([]string, len(s.Errors), len(s.Errors)+1)
	copy(errs, s.Errors)
	s.Errors = append(errs, msg)
	s.CurrentStage = stage
	s.Phase = PhaseDegraded
	return s
}

func (s State) withUsage(usage ai.StageUsage) State {
	all := make([]ai.StageUsage, len(s.Usage), len(s.Usage)+1)
	copy(all, s.Usage)
	s.Usage = append(all, usage)
	return s
}

func (s State) advance(stage string, phase Phase) State {
	s.CurrentStage = stage
	if s.Phase != PhaseDegraded {
		s.Phase = phase
	}
	return s
}
