package cli

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/bonusledger/internal/repository"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// repository.New applies the schema on open.
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Ping(context.Background()); err != nil {
			return err
		}
		slog.Info("schema up to date", "driver", cfg.Repository.Driver)
		return nil
	},
}
