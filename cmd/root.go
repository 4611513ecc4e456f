package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/pipeline"
	"github.com/spigell/resume-screener/internal/provider"
	"github.com/spigell/resume-screener/internal/server"
)

const (
	app       = "resume-screener"
	envPrefix = "SCREENER"
)

type Config struct {
	Providers provider.CatalogConfig `mapstructure:"providers"`
	Invoker   provider.Options       `mapstructure:"invoker"`
	Server    server.Config          `mapstructure:"server"`
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-screener scores resumes against job descriptions with a chain of LLM providers",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().Bool("json", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

// setDefaults registers every config key so env overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.gemini_models", provider.DefaultGeminiModels)
	v.SetDefault("providers.groq_models", provider.DefaultGroqModels)
	v.SetDefault("providers.groq_base_url", "")
	v.SetDefault("providers.timeout", 60*time.Second)
	v.SetDefault("providers.max_log_length", 200)

	v.SetDefault("invoker.max_retries", provider.DefaultMaxRetries)
	v.SetDefault("invoker.backoff", provider.DefaultBackoff)
	v.SetDefault("invoker.attempt_timeout", time.Duration(0))
	v.SetDefault("invoker.temperature", 0.1)
	v.SetDefault("invoker.quota_policy", string(provider.QuotaSkipVendor))

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_grace", 10*time.Second)
}

func initConfig() {
	// Provider credentials usually live in .env next to the binary.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional unless given explicitly.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	policy, err := provider.ParseQuotaPolicy(string(config.Invoker.QuotaPolicy))
	if err != nil {
		return nil, err
	}
	config.Invoker.QuotaPolicy = policy

	return &config, nil
}

// setup builds the logger, the config and a pipeline wired to both.
func setup() (*zap.Logger, *Config, *pipeline.Pipeline) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting with config", zap.String("config", fmt.Sprintf("%+v", *config)))

	screener := pipeline.New(
		pipeline.WithCatalog(provider.DefaultCatalog(config.Providers)),
		pipeline.WithInvokerOptions(config.Invoker),
		pipeline.WithLogger(logger),
	)

	return logger, config, screener
}
