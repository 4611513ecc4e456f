package ai

import (
	"context"
)

// Client is a single inference endpoint bound to one model and sampling temperature.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Recommendation is the closed set of labels a decision may carry.
type Recommendation string

const (
	RecommendationProceed     Recommendation = "Proceed to interview"
	RecommendationReject      Recommendation = "Reject"
	RecommendationNeedsReview Recommendation = "Needs manual review"
	// RecommendationManualReview is reserved for degraded decisions built without a model.
	RecommendationManualReview Recommendation = "Manual review required"
)

// Valid reports whether r belongs to the closed label set.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationProceed, RecommendationReject, RecommendationNeedsReview, RecommendationManualReview:
		return true
	default:
		return false
	}
}

type ResumeAnalysis struct {
	Skills               []string `json:"skills" jsonschema_description:"Technical and soft skills found anywhere in the resume"`
	Experience           []string `json:"experience" jsonschema_description:"Work experiences with company, role, duration and responsibilities"`
	Education            []string `json:"education" jsonschema_description:"Educational qualifications"`
	Technologies         []string `json:"technologies" jsonschema_description:"Specific technologies, tools and frameworks"`
	TotalYearsExperience float64  `json:"total_years_experience" jsonschema_description:"Estimated total years of professional experience"`
	Summary              string   `json:"summary" jsonschema_description:"Brief 2-3 sentence summary of the candidate"`
}

type JobRequirements struct {
	RequiredSkills        []string `json:"required_skills" jsonschema_description:"Skills required or preferred in the job"`
	ExperienceLevel       string   `json:"experience_level" jsonschema_description:"Required experience level (Entry, Mid, Senior, Lead, etc.)"`
	RoleType              string   `json:"role_type" jsonschema_description:"Type of role (Full-time, Part-time, Remote, etc.) and job title"`
	RequiredTechnologies  []string `json:"required_technologies" jsonschema_description:"Specific technologies required"`
	EducationRequirements string   `json:"education_requirements" jsonschema_description:"Required or preferred educational qualifications"`
	KeyResponsibilities   []string `json:"key_responsibilities" jsonschema_description:"Main responsibilities of the role"`
}

// MatchDecision is the terminal artifact of a screening run.
type MatchDecision struct {
	MatchScore       float64        `json:"match_score"`
	Recommendation   Recommendation `json:"recommendation"`
	RequiresHuman    bool           `json:"requires_human"`
	Confidence       float64        `json:"confidence"`
	ReasoningSummary string         `json:"reasoning_summary"`
	MatchingSkills   []string       `json:"matching_skills"`
	MissingSkills    []string       `json:"missing_skills"`

	// Set only on degraded decisions.
	Error       string `json:"error,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`

	Details *Details `json:"_details,omitempty"`
}

// Degraded reports whether the decision was produced without a model verdict.
func (d MatchDecision) Degraded() bool {
	return d.Recommendation == RecommendationManualReview || d.ErrorReason != ""
}

// Details is the verbose side channel attached to a decision on request.
type Details struct {
	ResumeAnalysis     *ResumeAnalysis  `json:"resume_analysis"`
	JDAnalysis         *JobRequirements `json:"jd_analysis"`
	FullMatchingResult *MatchDecision   `json:"full_matching_result"`
	Errors             []string         `json:"errors"`
	Providers          []StageUsage     `json:"providers,omitempty"`
}

// StageUsage records which provider satisfied a stage.
type StageUsage struct {
	Stage    string `json:"stage"`
	Provider string `json:"provider"`
	Attempts int    `json:"attempts"`
}
