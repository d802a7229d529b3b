package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/api"
	"github.com/goalpledge/pledgebot/pledgebot/commands"
	"github.com/goalpledge/pledgebot/pledgebot/logger"
	"github.com/goalpledge/pledgebot/pledgebot/services"
)

var syncCommands bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord bot with the enabled API and background services",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&syncCommands, "sync-commands", false, "Whether to sync commands to discord")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *pledgebot.Config) error {
	slog.Info("Starting pledge bot",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit),
	)

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	rt, err := openStore(startCtx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	b := pledgebot.New(*cfg, version, commit)
	b.DB = rt.db

	h := handler.New()
	commands.Register(h, b)

	if err := b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		return fmt.Errorf("failed to setup bot: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	var publishers []ledger.Publisher
	if cfg.Bot.AnnounceChannel != 0 {
		publishers = append(publishers, services.NewAnnouncer(b.Client.Rest(), cfg.Bot.AnnounceChannel))
	}
	rt.startLedger(publishers...)
	b.Processor, b.Query, b.Meta = rt.processor, rt.query, rt.meta

	if syncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err := handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
			)
		}
	}

	tasks, err := rt.backgroundTasks(startCtx)
	if err != nil {
		return err
	}

	gatewayCtx, gatewayCancel := context.WithTimeout(ctx, 10*time.Second)
	defer gatewayCancel()
	if err := b.Client.OpenGateway(gatewayCtx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	logger.LogSystem("Bot is running. Press CTRL-C to exit.")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		server := api.New(rt.processor, rt.query, rt.meta, api.Options{
			AllowOrigins: cfg.API.AllowOrigins,
			JWTSecret:    cfg.API.JWTSecret,
			Version:      version,
			Commit:       commit,
		})
		g.Go(func() error { return server.Run(gctx, cfg.API.Addr) })
	}
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	slog.Info("Shutting down bot...", slog.String("type", "sys"))
	return err
}
