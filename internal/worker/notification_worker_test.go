package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/amqp"
	"smartbudget/internal/cache"
	"smartbudget/internal/core"
	"smartbudget/internal/finance"
	applog "smartbudget/internal/log"
	"smartbudget/internal/storage"
)

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) NotifyProfile(_ context.Context, p core.Profile) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p.ID)
	return nil
}

type recordingConfirmer struct {
	confirmed []string
	err       error
}

func (c *recordingConfirmer) ConfirmDelivered(_ context.Context, id string) error {
	c.confirmed = append(c.confirmed, id)
	return c.err
}

// chanConsumer replays its messages then blocks until ctx is done.
type chanConsumer struct {
	msgs    []*amqp.ProfileRegisteredMessage
	results []error
}

func (c *chanConsumer) ConsumeProfiles(ctx context.Context, handler func(context.Context, *amqp.ProfileRegisteredMessage) error) error {
	for _, m := range c.msgs {
		c.results = append(c.results, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleProfileMessageSuppressesDuplicates(t *testing.T) {
	sender := &recordingSender{}
	confirmer := &recordingConfirmer{}
	w := NewNotificationWorker(sender, confirmer, cache.NewLRUCache[time.Time](100, time.Hour), applog.Discard())
	msg := amqp.NewProfileRegisteredMessage(core.Profile{ID: "p1", Name: "Ali"})

	require.NoError(t, w.HandleProfileMessage(context.Background(), msg))
	require.NoError(t, w.HandleProfileMessage(context.Background(), msg))

	assert.Equal(t, []string{"p1"}, sender.sent)
	assert.Equal(t, []string{"p1", "p1"}, confirmer.confirmed)
}

func TestHandleProfileMessageFailure(t *testing.T) {
	boom := errors.New("telegram down")
	delivered := cache.NewLRUCache[time.Time](100, time.Hour)
	confirmer := &recordingConfirmer{}
	w := NewNotificationWorker(&recordingSender{err: boom}, confirmer, delivered, applog.Discard())

	err := w.HandleProfileMessage(context.Background(), amqp.NewProfileRegisteredMessage(core.Profile{ID: "p1"}))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, delivered.Size())
	assert.Empty(t, confirmer.confirmed)
}

func TestHandleProfileMessageConfirmFailureStillDelivers(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(sender, &recordingConfirmer{err: errors.New("broker gone")}, nil, applog.Discard())

	err := w.HandleProfileMessage(context.Background(), amqp.NewProfileRegisteredMessage(core.Profile{ID: "p1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, sender.sent)
}

// queue stands in for the broker between the aggregator and the worker.
type queue struct {
	mu   sync.Mutex
	msgs []*amqp.ProfileRegisteredMessage
}

func (q *queue) NotifyProfile(_ context.Context, p core.Profile) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, amqp.NewProfileRegisteredMessage(p))
	return nil
}

func (q *queue) take(t *testing.T) *amqp.ProfileRegisteredMessage {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.msgs)
	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	return m
}

// aggregatorConfirmer feeds confirmations straight back into the aggregator.
type aggregatorConfirmer struct{ agg *finance.Aggregator }

func (c aggregatorConfirmer) ConfirmDelivered(ctx context.Context, id string) error {
	return c.agg.MarkNotified(ctx, id)
}

func TestQueuedProfileIsSentOnlyAfterDelivery(t *testing.T) {
	ctx := context.Background()
	store := storage.New(filepath.Join(t.TempDir(), "smartbudget.db"))
	t.Cleanup(func() { _ = store.Close() })

	q := &queue{}
	agg := finance.New(store, finance.WithLogger(applog.Discard()), finance.WithQueuedNotifier(q))
	require.NoError(t, agg.Load(ctx))

	saved, err := agg.SaveProfile(ctx, core.ProfileInput{Name: "Ali", Phone: "+998901234567"})
	require.NoError(t, err)
	agg.Close()

	// Telegram rejects the first attempt: the profile must stay unsent.
	failing := NewNotificationWorker(&recordingSender{err: errors.New("502 bad gateway")},
		aggregatorConfirmer{agg}, nil, applog.Discard())
	require.Error(t, failing.HandleProfileMessage(ctx, q.take(t)))

	p, err := store.GetProfile(ctx)
	require.NoError(t, err)
	assert.False(t, p.TelegramSent)
	assert.False(t, agg.Profile().TelegramSent)

	// The broker redelivers and Telegram accepts it.
	sender := &recordingSender{}
	ok := NewNotificationWorker(sender, aggregatorConfirmer{agg}, nil, applog.Discard())
	redelivered := amqp.NewProfileRegisteredMessage(saved)
	require.NoError(t, ok.HandleProfileMessage(ctx, redelivered))

	p, err = store.GetProfile(ctx)
	require.NoError(t, err)
	assert.True(t, p.TelegramSent)
	assert.True(t, agg.Profile().TelegramSent)
	assert.Equal(t, []string{saved.ID}, sender.sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	sender := &recordingSender{}
	w := NewNotificationWorker(sender, nil, nil, applog.Discard())
	consumer := &chanConsumer{msgs: []*amqp.ProfileRegisteredMessage{
		amqp.NewProfileRegisteredMessage(core.Profile{ID: "p1"}),
		amqp.NewProfileRegisteredMessage(core.Profile{ID: "p2"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, []string{"p1", "p2"}, sender.sent)
}
