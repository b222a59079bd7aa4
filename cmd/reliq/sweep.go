package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepBatch int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired, exhausted and locked-out secrets once",
	Long: `sweep removes metadata rows whose secrets can no longer be read, together
with any ciphertext still stored for them. serve runs the same pass on an
interval; this command is for cron-style deployments.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepBatch, "batch", 0, "rows per pass (default from config)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	batch := sweepBatch
	if batch <= 0 {
		batch = cfg.Sweep.Batch
	}

	total := 0
	for {
		n, err := a.svc.Sweep(ctx, batch)
		total += n
		if err != nil {
			return err
		}
		if n < batch {
			break
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d secrets\n", total)
	return nil
}
