// Package cli provides common initialization utilities shared by the
// smartbudget subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"smartbudget/internal/amqp"
	"smartbudget/internal/assets"
	"smartbudget/internal/cache"
	"smartbudget/internal/config"
	"smartbudget/internal/finance"
	applog "smartbudget/internal/log"
	"smartbudget/internal/notify"
	"smartbudget/internal/storage"
)

// LoadAndValidateConfig loads configuration and runs validate on it, which
// defaults to (*config.Config).Validate.
func LoadAndValidateConfig(path string, validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if validate == nil {
		validate = (*config.Config).Validate
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger initializes structured logging from configuration and sets it
// as the default logger.
func SetupLogger(cfg *config.Config, out io.Writer) (*applog.Logger, error) {
	level, err := applog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentApp,
		Format:    cfg.LogFormat,
		Output:    out,
	})
	applog.SetDefault(logger)
	return logger, nil
}

// OpenFinance opens the local store and loads an Aggregator from it. The
// returned close func waits for background notifications and closes the
// store.
func OpenFinance(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts ...finance.Option) (*finance.Aggregator, func(), error) {
	store := storage.New(cfg.SQLiteDBPath)
	opts = append([]finance.Option{
		finance.WithLogger(logger.WithComponent(applog.ComponentFinance)),
		finance.WithNotifyTimeout(cfg.NotifyTimeout),
	}, opts...)

	agg := finance.New(store, opts...)
	closeFn := func() {
		agg.Close()
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", applog.FieldError, err)
		}
	}

	if err := agg.Load(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("load finance data from %s: %w", cfg.SQLiteDBPath, err)
	}
	return agg, closeFn, nil
}

// Notifications is the profile notifier selected by NOTIFY_BACKEND.
type Notifications struct {
	Options []finance.Option
	client  *amqp.Client
}

// NotifierOptions wires the profile notifier selected by NOTIFY_BACKEND.
func NotifierOptions(cfg *config.Config, logger *applog.Logger) (*Notifications, error) {
	switch cfg.NotifyBackend {
	case config.NotifyDirect:
		probe := notify.DialProbe{Addr: cfg.OnlineProbeAddr, Timeout: cfg.OnlineProbeTimeout}
		logger.Info("Profile notifications go straight to Telegram", "probe", cfg.OnlineProbeAddr)
		return &Notifications{Options: []finance.Option{
			finance.WithNotifier(notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID)),
			finance.WithOnlineCheck(probe.Online),
		}}, nil

	case config.NotifyAMQP:
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return &Notifications{}, fmt.Errorf("connect to AMQP broker: %w", err)
		}
		logger.Info("Profile notifications are queued", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		return &Notifications{
			Options: []finance.Option{finance.WithQueuedNotifier(client)},
			client:  client,
		}, nil

	default:
		return &Notifications{}, nil
	}
}

// ConsumeConfirmations marks profiles sent as the worker confirms their
// delivery. It returns at once for backends without confirmations, and
// otherwise blocks until ctx is done.
func (n *Notifications) ConsumeConfirmations(ctx context.Context, agg *finance.Aggregator, logger *applog.Logger) {
	if n.client == nil {
		return
	}
	err := n.client.ConsumeDeliveries(ctx, func(ctx context.Context, msg *amqp.ProfileDeliveredMessage) error {
		return agg.MarkNotified(ctx, msg.ProfileID)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("Delivery confirmations stopped", applog.FieldError, err)
	}
}

func (n *Notifications) Close() error {
	if n.client == nil {
		return nil
	}
	return n.client.Close()
}

// AssetStore is the backing cache of the asset handler.
type AssetStore struct {
	Cache   cache.Cache[assets.Entry]
	manager *cache.Manager
	redis   *redis.Client
}

// OpenAssetStore uses Redis when ASSET_CACHE_REDIS_URL is set and reachable,
// and an in-process LRU otherwise.
func OpenAssetStore(ctx context.Context, cfg *config.Config, logger *applog.Logger) *AssetStore {
	if cfg.AssetCacheRedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.AssetCacheRedisURL)
		if err == nil {
			logger.Info("Asset cache backed by Redis")
			return &AssetStore{
				Cache: cache.NewRedisCache[assets.Entry](client, "smartbudget:assets", cfg.AssetCacheTTL),
				redis: client,
			}
		}
		logger.Warn("Redis unavailable, continuing with in-memory asset cache", applog.FieldError, err)
	}

	lru := cache.NewLRUCache[assets.Entry](cfg.AssetCacheSize, cfg.AssetCacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	if cfg.AssetCacheTTL > 0 {
		manager.StartCleanup(cfg.AssetCacheTTL)
	}
	return &AssetStore{Cache: lru, manager: manager}
}

func (s *AssetStore) Close() error {
	if s.manager != nil {
		s.manager.Stop()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// GracefulShutdown runs steps in order under one deadline and joins their
// errors.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, steps ...func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, step := range steps {
		if err := step(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if ctx.Err() != nil {
		logger.Warn("Shutdown timeout reached")
	} else {
		logger.Info("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
	}
	return errors.Join(errs...)
}
