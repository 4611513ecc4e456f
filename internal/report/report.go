package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	wrapWidth         = 60
	technicalDetailsN = 150
)

// Encode renders the decision as JSON. Non-ASCII text is kept as is.
func Encode(d ai.MatchDecision, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ToFile writes the encoded decision to path, replacing any previous content.
func ToFile(path string, d ai.MatchDecision, pretty bool) error {
	data, err := Encode(d, pretty)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return writeAndClose(file, path, append(data, '\n'))
}

// writeAndClose reports a Close failure when the write itself succeeded.
func writeAndClose(w io.WriteCloser, path string, data []byte) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DumpToTmpFile stores the decision in a new temporary file and returns its name.
func DumpToTmpFile(d ai.MatchDecision) (string, error) {
	data, err := Encode(d, true)
	if err != nil {
		return "", err
	}

	file, err := os.CreateTemp("", "screening_*.json")
	if err != nil {
		return "", err
	}
	if err := writeAndClose(file, file.Name(), append(data, '\n')); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// WriteSummary prints a human-readable digest of the decision.
func WriteSummary(w io.Writer, d ai.MatchDecision) error {
	var b strings.Builder

	rule := strings.Repeat("=", wrapWidth)
	fmt.Fprintf(&b, "\n%s\nSCREENING RESULT SUMMARY\n%s\n\n", rule, rule)

	fmt.Fprintf(&b, "  Recommendation: %s\n", headline(d.Recommendation))
	fmt.Fprintf(&b, "  Match Score:    %.1f%%\n", d.MatchScore*100)
	fmt.Fprintf(&b, "  Confidence:     %.1f%%\n", d.Confidence*100)
	fmt.Fprintf(&b, "  Human Review:   %s\n", yesNo(d.RequiresHuman))

	if d.RequiresHuman && d.ErrorReason != "" {
		fmt.Fprintf(&b, "\n  Error Reason:\n    %s\n", d.ErrorReason)
	}

	reasoning := strings.TrimSpace(d.ReasoningSummary)
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	b.WriteString("\n  Reasoning:\n")
	for _, line := range wrap(reasoning, wrapWidth) {
		fmt.Fprintf(&b, "    %s\n", line)
	}

	if len(d.MatchingSkills) > 0 {
		fmt.Fprintf(&b, "\n  Matching Skills: %s\n", strings.Join(d.MatchingSkills, ", "))
	}
	if len(d.MissingSkills) > 0 {
		fmt.Fprintf(&b, "  Missing Skills:  %s\n", strings.Join(d.MissingSkills, ", "))
	}

	if d.Error != "" {
		fmt.Fprintf(&b, "\n  Technical Details:\n    %s\n", utils.TruncateForLog(d.Error, technicalDetailsN))
	}

	fmt.Fprintf(&b, "\n%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func headline(r ai.Recommendation) string {
	switch r {
	case ai.RecommendationProceed:
		return "PROCEED TO INTERVIEW"
	case ai.RecommendationReject:
		return "REJECT"
	default:
		return "NEEDS MANUAL REVIEW"
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// wrap splits text into lines of at most width runes, breaking on spaces.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && len([]rune(line.String()))+1+len([]rune(word)) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
