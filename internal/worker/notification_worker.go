// Package worker delivers queued profile notifications.
package worker

import (
	"context"
	"fmt"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/cache"
	"smartbudget/internal/core"
	applog "smartbudget/internal/log"
)

// Sender delivers a profile announcement.
type Sender interface {
	NotifyProfile(ctx context.Context, p core.Profile) error
}

// Confirmer reports a delivered announcement back to the publishing side,
// which then flips the profile's telegramSent flag.
type Confirmer interface {
	ConfirmDelivered(ctx context.Context, profileID string) error
}

// Consumer feeds messages to a handler until ctx is done.
type Consumer interface {
	ConsumeProfiles(ctx context.Context, handler func(context.Context, *amqp.ProfileRegisteredMessage) error) error
}

// NotificationWorker delivers profile.registered messages through a Sender.
// Profiles delivered recently are remembered so a redelivered message does
// not announce the same user twice.
type NotificationWorker struct {
	sender    Sender
	confirmer Confirmer
	delivered cache.Cache[time.Time]
	logger    *applog.Logger
}

// NewNotificationWorker creates a worker. confirmer may be nil when nobody
// waits for confirmations; delivered may be nil to disable duplicate
// suppression.
func NewNotificationWorker(sender Sender, confirmer Confirmer, delivered cache.Cache[time.Time], logger *applog.Logger) *NotificationWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &NotificationWorker{
		sender:    sender,
		confirmer: confirmer,
		delivered: delivered,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleProfileMessage delivers one message and confirms it. A failed
// delivery is returned without confirming, so the profile stays unsent.
func (w *NotificationWorker) HandleProfileMessage(ctx context.Context, msg *amqp.ProfileRegisteredMessage) error {
	id := msg.Profile.ID

	if w.delivered != nil {
		if at, ok := w.delivered.Get(id); ok {
			w.logger.InfoContext(ctx, "Skipping already delivered profile notification",
				applog.FieldProfileID, id, "delivered_at", at)
			// The earlier confirmation may have been lost.
			w.confirm(ctx, id)
			return nil
		}
	}

	if err := w.sender.NotifyProfile(ctx, msg.Profile); err != nil {
		return fmt.Errorf("deliver profile %s: %w", id, err)
	}

	if w.delivered != nil {
		w.delivered.Set(id, time.Now())
	}
	w.logger.InfoContext(ctx, "Profile notification delivered",
		applog.FieldProfileID, id, "queued_at", msg.Timestamp)
	w.confirm(ctx, id)
	return nil
}

// confirm failures are logged only; the announcement already went out.
func (w *NotificationWorker) confirm(ctx context.Context, id string) {
	if w.confirmer == nil {
		return
	}
	if err := w.confirmer.ConfirmDelivered(ctx, id); err != nil {
		w.logger.WarnContext(ctx, "Failed to confirm profile notification",
			applog.FieldProfileID, id, applog.FieldError, err)
	}
}

// Run consumes until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Notification worker started")
	err := consumer.ConsumeProfiles(ctx, w.HandleProfileMessage)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Notification worker stopped")
		return nil
	}
	return err
}
