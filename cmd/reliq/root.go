package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reliq",
	Short: "One-time encrypted secret sharing",
	Long: `reliq stores encrypted payloads that are destroyed after a bounded number
of views, a bounded number of wrong passwords, or a time window, whichever
comes first.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
