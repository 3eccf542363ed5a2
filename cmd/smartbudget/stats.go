package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"smartbudget/internal/cli"
	"smartbudget/internal/core"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print income, expense and balance totals as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), root, period, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&period, "period", string(core.PeriodAll), "all, day, week, month or year")
	return cmd
}

func runStats(ctx context.Context, root *rootOptions, period string, stdout io.Writer) error {
	p, err := core.ParsePeriod(period)
	if err != nil {
		return err
	}

	cfg, err := cli.LoadAndValidateConfig(root.configPath, nil)
	if err != nil {
		return err
	}
	logger, err := cli.SetupLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	agg, closeFinance, err := cli.OpenFinance(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFinance()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(agg.Stats(p))
}
