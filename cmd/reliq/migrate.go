package main

import (
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/Izume01/reliq/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	db, err := store.NewDB(ctx, cfg.Store.Metadata.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.RunMigrations(db.Writer); err != nil {
		return err
	}
	clog.FromContext(ctx).Info("migrations complete", "path", cfg.Store.Metadata.Path)
	return nil
}
