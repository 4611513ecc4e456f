package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/pipeline"
	"github.com/spigell/resume-screener/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the provider chain a screening would use now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, config, screener := setup()
		return describeProviders(cmd.Context(), screener.Chain(), config.Invoker.Temperature, logger)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func describeProviders(ctx context.Context, chain provider.Chain, temperature float32, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPROVIDER\tCREDENTIAL")
	for _, d := range chain.Descriptors {
		fmt.Fprintf(w, "%d\t%s\t%s\n", d.Position+1, d.DisplayName(), d.CredentialEnv)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(chain.Missing) > 0 {
		fmt.Printf("\nmissing credentials: %s\n", strings.Join(chain.Missing, ", "))
	}

	fmt.Println("\nstages:")
	for _, s := range pipeline.Describe() {
		fmt.Printf("  %-8s %-16s reads %s\n", s.Name, s.Title, strings.Join(s.Reads, ", "))
	}

	_, d, err := chain.FirstClient(ctx, temperature, logger)
	var authErr *provider.AuthenticationError
	switch {
	case err == nil:
		fmt.Printf("\nfirst usable client: %s\n", d.DisplayName())
	case errors.As(err, &authErr):
		return fmt.Errorf("credential rejected: %w", err)
	default:
		return err
	}

	return nil
}
