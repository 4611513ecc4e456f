package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the screening HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	logger, config, screener := setup()

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	chain := screener.Chain()
	if chain.Empty() {
		logger.Warn("no provider credentials found, every request will need manual review",
			zap.Strings("missing", chain.Missing),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting the resume-screener api", zap.String("version", version))

	if err := server.New(screener, config.Server, logger).Run(ctx); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
}
