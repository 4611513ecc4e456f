package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/pipeline"
	"github.com/spigell/resume-screener/internal/report"
	"github.com/spigell/resume-screener/internal/textsource"
)

const shortResumeContext = "Resume text extraction returned empty or very short content."

var errShortJobDescription = fmt.Errorf("job description is too short (minimum %d characters)", textsource.MinJobDescriptionChars)

type screenInputs struct {
	resumeFile string
	resumeText string
	jdFile     string
	jdText     string
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen a resume against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		screen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringP("resume", "r", "", "plain-text resume file (.txt, .md)")
	screenCmd.Flags().String("resume-text", "", "resume text")
	screenCmd.Flags().StringP("jd", "j", "", "job description file")
	screenCmd.Flags().String("jd-text", "", "job description text")
	screenCmd.Flags().StringP("output", "o", "", "write the JSON decision to this file instead of stdout")
	screenCmd.Flags().BoolP("verbose", "v", false, "include per-stage details in the output")
	screenCmd.Flags().Bool("pretty", true, "indent the JSON output")
	screenCmd.Flags().Bool("dump", false, "also dump the decision to a temporary file")

	screenCmd.MarkFlagsMutuallyExclusive("resume", "resume-text")
	screenCmd.MarkFlagsMutuallyExclusive("jd", "jd-text")
	screenCmd.MarkFlagsOneRequired("resume", "resume-text")
}

func screen(cmd *cobra.Command) {
	logger, _, screener := setup()

	flags := cmd.Flags()
	output, _ := flags.GetString("output")
	verbose, _ := flags.GetBool("verbose")
	pretty, _ := flags.GetBool("pretty")
	dump, _ := flags.GetBool("dump")

	in := screenInputs{}
	in.resumeFile, _ = flags.GetString("resume")
	in.resumeText, _ = flags.GetString("resume-text")
	in.jdFile, _ = flags.GetString("jd")
	in.jdText, _ = flags.GetString("jd-text")

	if in.jdFile == "" && in.jdText == "" && isatty.IsTerminal(os.Stdin.Fd()) {
		text, err := askJobDescription()
		if err != nil {
			logger.Fatal("reading job description", zap.Error(err))
		}
		in.jdText = text
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decision, err := screenDecision(ctx, screener, in, verbose)
	if err != nil {
		logger.Fatal("screening", zap.Error(err))
	}

	if err := report.WriteSummary(os.Stderr, decision); err != nil {
		logger.Warn("printing summary", zap.Error(err))
	}

	if dump {
		path, err := report.DumpToTmpFile(decision)
		if err != nil {
			logger.Error("dumping decision", zap.Error(err))
		} else {
			logger.Info("decision dumped", zap.String("file", path))
		}
	}

	if output != "" {
		if err := report.ToFile(output, decision, pretty); err != nil {
			logger.Fatal("writing decision", zap.Error(err))
		}
		logger.Info("decision written", zap.String("file", output))
		return
	}

	data, err := report.Encode(decision, pretty)
	if err != nil {
		logger.Fatal("encoding decision", zap.Error(err))
	}
	fmt.Println(string(data))
}

// screenDecision loads both inputs and runs the screener. A resume below the
// minimum length short-circuits to a manual review; a short job description is
// an error.
func screenDecision(ctx context.Context, screener pipelineRunner, in screenInputs, verbose bool) (ai.MatchDecision, error) {
	resume, err := loadText(in.resumeFile, in.resumeText)
	if err != nil {
		return ai.MatchDecision{}, fmt.Errorf("resume: %w", err)
	}

	jd, err := loadText(in.jdFile, in.jdText)
	if err != nil {
		return ai.MatchDecision{}, fmt.Errorf("job description: %w", err)
	}

	if !textsource.LongEnough(resume, textsource.MinResumeChars) {
		return pipeline.BuildManualReview(shortResumeContext), nil
	}
	if !textsource.LongEnough(jd, textsource.MinJobDescriptionChars) {
		return ai.MatchDecision{}, errShortJobDescription
	}

	return screener.Run(ctx, resume, jd, verbose), nil
}

type pipelineRunner interface {
	Run(ctx context.Context, resumeText, jobDescription string, verbose bool) ai.MatchDecision
}

func loadText(path, text string) (string, error) {
	if path == "" {
		return strings.TrimSpace(text), nil
	}
	return textsource.ReadPlainText(path)
}

func askJobDescription() (string, error) {
	prompt := promptui.Prompt{
		Label: "Job description",
		Validate: func(input string) error {
			if !textsource.LongEnough(input, textsource.MinJobDescriptionChars) {
				return errShortJobDescription
			}
			return nil
		},
	}

	text, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return "", errors.New("job description prompt aborted")
	}
	return text, err
}
