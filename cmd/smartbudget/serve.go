package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"smartbudget/internal/assets"
	"smartbudget/internal/cli"
	apphttp "smartbudget/internal/http"
	applog "smartbudget/internal/log"
	"smartbudget/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the app shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(parent context.Context, root *rootOptions) error {
	cfg, err := cli.LoadAndValidateConfig(root.configPath, nil)
	if err != nil {
		return err
	}
	logger, err := cli.SetupLogger(cfg, nil)
	if err != nil {
		return err
	}
	logger.Info("Starting smartbudget", applog.FieldOperation, applog.OpStartup,
		"env", cfg.Env, "port", cfg.Port, "notify_backend", cfg.NotifyBackend)

	ctx, cancel := cli.SignalContext(parent, logger)
	defer cancel()

	notifications, err := cli.NotifierOptions(cfg, logger)
	if err != nil {
		// Notifications are best effort; the tracker works without them.
		logger.Warn("Profile notifications disabled", applog.FieldError, err)
	}

	agg, closeFinance, err := cli.OpenFinance(ctx, cfg, logger, notifications.Options...)
	if err != nil {
		_ = notifications.Close()
		return err
	}
	confirmationsDone := make(chan struct{})
	go func() {
		defer close(confirmationsDone)
		notifications.ConsumeConfirmations(ctx, agg, logger)
	}()

	store := cli.OpenAssetStore(ctx, cfg, logger)
	shell := assets.New(cfg.AssetCacheVersion, store.Cache,
		assets.FileOrigin(web.StaticFS()), assets.DefaultShell, logger)
	if err := shell.Install(ctx); err != nil {
		closeFinance()
		_ = store.Close()
		return err
	}
	shell.Activate(ctx)

	srv := apphttp.NewServer(agg, apphttp.Options{
		Addr:        ":" + cfg.Port,
		Production:  cfg.IsProduction(),
		CORSOrigins: cfg.CORSOrigins,
		Assets:      shell,
		Logger:      logger,
	})

	errCh := srv.Start()

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("HTTP server failed", applog.FieldError, runErr)
		}
	case <-ctx.Done():
	}

	cancel()
	steps := []func(context.Context) error{
		srv.Shutdown,
		func(shutdownCtx context.Context) error {
			select {
			case <-confirmationsDone:
			case <-shutdownCtx.Done():
			}
			return nil
		},
		func(context.Context) error { closeFinance(); return nil },
		func(context.Context) error { return store.Close() },
		func(context.Context) error { return notifications.Close() },
	}
	if err := cli.GracefulShutdown(logger, 30*time.Second, steps...); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
