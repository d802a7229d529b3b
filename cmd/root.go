package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/logger"
)

const appName = "pledgebot"

var (
	version = "dev"
	commit  = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Stake-backed goals and challenges for Discord",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")
}

// Execute runs the CLI until it finishes or the process receives SIGINT/SIGTERM.
func Execute(v, c string) {
	version, commit = v, c
	rootCmd.Version = v + " (" + c + ")"

	slog.SetDefault(logger.New(appName, "", slog.LevelInfo, false, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.LogError("Command failed", err, slog.String("command", rootCmd.Name()))
		stop()
		os.Exit(1)
	}
}

// loadConfig reads .env, the TOML file and the environment, then installs the configured logger.
func loadConfig(needBot bool) (*pledgebot.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", slog.String("type", "sys"), slog.Any("error", err))
	}

	cfg, err := pledgebot.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(needBot); err != nil {
		return nil, err
	}

	slog.SetDefault(logger.New(appName, cfg.Log.Format, cfg.Log.Level, cfg.Log.AddSource, os.Stdout))
	logger.LogSystem("Configuration loaded",
		slog.String("path", configPath),
		slog.String("store", cfg.Store.Driver),
	)
	return cfg, nil
}
