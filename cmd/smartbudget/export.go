package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"smartbudget/internal/cli"
	"smartbudget/internal/export"
)

type exportOptions struct {
	format string
	out    string
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the transactions and budgets snapshot to a file",
		Long: `Export writes the snapshot of transactions and budgets as JSON or as an
Excel workbook. Without --out the file is named after today's date; use
--out - to write to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "json", "export format: json or xlsx")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output path, - for stdout")
	return cmd
}

func runExport(ctx context.Context, root *rootOptions, opts *exportOptions, stdout io.Writer) error {
	format := strings.ToLower(opts.format)
	if format != "json" && format != "xlsx" {
		return fmt.Errorf("unsupported export format %q", opts.format)
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

	data, err := agg.Export(ctx)
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		out = export.Filename(time.Now(), format)
	}

	var w io.Writer = stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "xlsx" {
		err = export.WriteXLSX(w, data)
	} else {
		_, err = w.Write(data)
	}
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	if out != "-" {
		logger.Info("Export written", "path", out, "format", format)
	}
	return nil
}
