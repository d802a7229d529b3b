package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/goalpledge/pledgebot/pledgebot/database"
)

var resetLedger bool

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			slog.Error("Failed to connect to database", slog.String("type", "db"), slog.Any("error", err))
			return err
		}
		defer db.Close()

		if err := db.InitializeSchema(ctx); err != nil {
			slog.Error("Migration failed", slog.String("type", "db"), slog.Any("error", err))
			return err
		}

		if resetLedger {
			slog.Warn("Resetting every ledger table", slog.String("type", "db"))
			if err := db.ResetLedger(ctx); err != nil {
				return err
			}
		}

		slog.Info("Migration completed successfully!", slog.String("type", "db"))
		return nil
	},
}

func init() {
	migrateCMD.Flags().BoolVar(&resetLedger, "reset", false, "truncate every ledger table after migrating")
	rootCmd.AddCommand(migrateCMD)
}
