package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goalpledge/pledgebot/pledgebot/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run only the HTTP API and background services, without Discord",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if len(cfg.API.JWTSecret) < 32 {
			return errors.New("api.jwt_secret (or API_JWT_SECRET) must be at least 32 bytes")
		}
		ctx := cmd.Context()

		startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()

		rt, err := openStore(startCtx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()
		rt.startLedger()

		tasks, err := rt.backgroundTasks(startCtx)
		if err != nil {
			return err
		}

		server := api.New(rt.processor, rt.query, rt.meta, api.Options{
			AllowOrigins: cfg.API.AllowOrigins,
			JWTSecret:    cfg.API.JWTSecret,
			Version:      version,
			Commit:       commit,
		})
		slog.Info("Starting pledge API",
			slog.String("type", "sys"),
			slog.String("version", version),
			slog.String("commit", commit),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return server.Run(gctx, cfg.API.Addr) })
		for _, task := range tasks {
			g.Go(func() error { return task(gctx) })
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
}
