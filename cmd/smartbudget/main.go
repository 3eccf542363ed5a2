package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "smartbudget",
		Short: "Personal income and expense tracker",
		Long: `SmartBudget records income and expenses in a local SQLite store, derives
totals per category and month, and exports the data as JSON or Excel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (yaml, json or toml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newStatsCmd(opts),
		newNotifyWorkerCmd(opts),
	)
	return cmd
}
