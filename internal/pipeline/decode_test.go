package pipeline

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/resume-screener/internal/ai"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "plain", input: `{"a": 1}`, expect: `{"a": 1}`},
		{name: "json fence", input: "```json\n{\"a\": 1}\n```", expect: `{"a": 1}`},
		{name: "bare fence", input: "```\n{\"a\": 1}\n```", expect: `{"a": 1}`},
		{name: "surrounding prose", input: "Sure! {\"a\": {\"b\": 2}} Hope this helps.", expect: `{"a": {"b": 2}}`},
		{name: "no object", input: "  nothing here ", expect: "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, extractJSON(tt.input))
		})
	}
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		input  any
		expect bool
	}{
		{true, true},
		{"true", true},
		{" Yes ", true},
		{"false", false},
		{"maybe", false},
		{1.0, true},
		{0.0, false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, coerceBool(tt.input), "input %v", tt.input)
	}
}

func TestCoerceFloat(t *testing.T) {
	assert.Equal(t, 0.85, coerceFloat("0.85"))
	assert.Equal(t, 85.0, coerceFloat("85%"))
	assert.Equal(t, 3.0, coerceFloat(3))
	assert.True(t, math.IsNaN(coerceFloat("high")))
	assert.True(t, math.IsNaN(coerceFloat([]any{1})))
}

func TestUnitInterval(t *testing.T) {
	tests := []struct {
		input  float64
		expect float64
	}{
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
		{1.7, 1},
		{2, 0.02},
		{85, 0.85},
		{100, 1},
		{250, 1},
		{-0.2, 0},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expect, unitInterval(tt.input), 1e-9, "input %v", tt.input)
	}
}

func TestNormalizeRecommendation(t *testing.T) {
	tests := []struct {
		input  string
		expect ai.Recommendation
		known  bool
	}{
		{"Proceed to interview", ai.RecommendationProceed, true},
		{"proceed", ai.RecommendationProceed, true},
		{"REJECT", ai.RecommendationReject, true},
		{"needs manual review", ai.RecommendationNeedsReview, true},
		{"Manual review required", ai.RecommendationNeedsReview, true},
		{"", ai.RecommendationNeedsReview, false},
		{"Maybe later", ai.RecommendationNeedsReview, false},
	}

	for _, tt := range tests {
		got, known := normalizeRecommendation(tt.input)
		assert.Equal(t, tt.expect, got, "input %q", tt.input)
		assert.Equal(t, tt.known, known, "input %q", tt.input)
	}
}

func TestDecoderValidatesSchema(t *testing.T) {
	dec, err := resumeDecoder()
	require.NoError(t, err)

	t.Run("null fields are treated as absent", func(t *testing.T) {
		out, err := dec.Decode(`{"skills": ["Go"], "education": null, "total_years_experience": "4.5"}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"Go"}, out.Skills)
		assert.Nil(t, out.Education)
		assert.Equal(t, 4.5, out.TotalYearsExperience)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := dec.Decode(`{"skills": "Go, SQL"}`)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, StageResume, decodeErr.Stage)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := dec.Decode(`["Go"]`)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, err.Error(), "expected a JSON object")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := dec.Decode("   ")
		assert.Error(t, err)
	})
}

func TestMatchDecoderRequiresCoreFields(t *testing.T) {
	dec, err := matchDecoder()
	require.NoError(t, err)

	_, err = dec.Decode(`{"confidence": 0.5}`)
	assert.Error(t, err)

	out, err := dec.Decode(`{"match_score": "0.85", "recommendation": "Reject", "requires_human": "yes"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.85, out.MatchScore)
	assert.True(t, out.RequiresHuman)
}

func TestFormatInstructionsEmbedSchema(t *testing.T) {
	dec, err := jdDecoder()
	require.NoError(t, err)

	assert.Contains(t, dec.instructions, "Here is the output schema:")
	assert.Contains(t, dec.instructions, `"required_skills"`)
	assert.Contains(t, dec.instructions, "Main responsibilities of the role")
	assert.False(t, strings.Contains(dec.instructions, "{{"), "template was not rendered")
}

func TestStageError(t *testing.T) {
	long := strings.Repeat("x", 300)

	msg := stageError(StageJD, &DecodeError{Stage: StageJD, Err: assert.AnError})
	assert.Equal(t, "JD Analyzer Error: LLM returned invalid JSON - "+assert.AnError.Error(), msg)

	msg = stageError(StageResume, &DecodeError{Stage: StageResume, Err: errString(long)})
	assert.Equal(t, "Resume Analyzer Error: LLM returned invalid JSON - "+strings.Repeat("x", 50), msg)

	msg = stageError(StageMatch, errString(long))
	assert.Equal(t, "Matching Agent Error: "+strings.Repeat("x", 100), msg)
}

type errString string

func (e errString) Error() string { return string(e) }
