package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"smartbudget/internal/amqp"
	"smartbudget/internal/cache"
	"smartbudget/internal/cli"
	"smartbudget/internal/config"
	applog "smartbudget/internal/log"
	"smartbudget/internal/notify"
	"smartbudget/internal/worker"
)

const (
	deliveredCacheSize = 1024
	deliveredCacheTTL  = 24 * time.Hour
)

func newNotifyWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-worker",
		Short: "Deliver queued profile notifications to Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyWorker(cmd.Context(), root)
		},
	}
}

func runNotifyWorker(parent context.Context, root *rootOptions) error {
	cfg, err := cli.LoadAndValidateConfig(root.configPath, (*config.Config).ValidateWorker)
	if err != nil {
		return err
	}
	logger, err := cli.SetupLogger(cfg, nil)
	if err != nil {
		return err
	}
	logger.Info("Starting notify-worker", applog.FieldOperation, applog.OpStartup, "queue", cfg.AMQPQueue)

	ctx, cancel := cli.SignalContext(parent, logger)
	defer cancel()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}

	delivered := cache.NewLRUCache[time.Time](deliveredCacheSize, deliveredCacheTTL)
	manager := cache.NewManager()
	manager.Register(delivered)
	manager.StartCleanup(time.Hour)

	telegram := notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID)
	w := worker.NewNotificationWorker(telegram, client, delivered, logger)

	runErr := w.Run(ctx, client)
	if runErr != nil {
		logger.Error("Message consumption failed", applog.FieldError, runErr)
	}

	shutdownErr := cli.GracefulShutdown(logger, 10*time.Second,
		func(context.Context) error { manager.Stop(); return nil },
		func(context.Context) error { return client.Close() },
	)
	if runErr != nil {
		return runErr
	}
	return shutdownErr
}
