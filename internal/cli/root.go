package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bird-quiz-service/internal/config"
	"bird-quiz-service/internal/logging"
)

var (
	port       string
	configPath string
	logLevel   string
)

// Execute runs the CLI.
func Execute() error {
	// a missing .env is fine; real environment variables win either way
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "bird-quiz",
		Short:        "Bird quiz service with prefetched hint images over Gorilla WebSocket",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (overrides log.level)")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewFetchCmd(&configPath))
	return cmd
}

// loadConfig reads the config file and sets up the global logger from it.
func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logging.Setup(level, cfg.Log.Pretty), nil
}
