// Package amqp publishes and consumes profile notifications over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"smartbudget/internal/core"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishRetries = 3
	publishTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned while the broker is considered unreachable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// deliveredSuffix names the confirmation queue next to the notification queue.
const deliveredSuffix = ".delivered"

type Client struct {
	url            string
	exchangeName   string
	queueName      string
	deliveredQueue string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:            url,
		exchangeName:   exchangeName,
		queueName:      queueName,
		deliveredQueue: queueName + deliveredSuffix,
	}

	client.mu.Lock()
	err := client.connectLocked()
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// connectLocked dials the broker and declares the topology. c.mu must be held.
func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName, c.deliveredQueue); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchangeName string, queueNames ...string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queueName := range queueNames {
		_, err = ch.QueueDeclare(
			queueName, // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queueName, err)
		}

		// Routing key is the queue name on a direct exchange.
		if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queueName, err)
		}
	}
	return nil
}

// reconnect replaces a dead connection.
func (c *Client) reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	return c.connectLocked()
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// NotifyProfile publishes a profile.registered message. Success only means
// the message is queued; the worker confirms delivery with ConfirmDelivered.
func (c *Client) NotifyProfile(ctx context.Context, p core.Profile) error {
	body, err := NewProfileRegisteredMessage(p).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publishWithRetry(ctx, c.queueName, EventProfileRegistered, body); err != nil {
		return fmt.Errorf("publish profile %s: %w", p.ID, err)
	}
	slog.InfoContext(ctx, "Published profile notification",
		"profile_id", p.ID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// ConfirmDelivered tells the publishing side that the announcement of
// profileID reached Telegram.
func (c *Client) ConfirmDelivered(ctx context.Context, profileID string) error {
	body, err := NewProfileDeliveredMessage(profileID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publishWithRetry(ctx, c.deliveredQueue, EventProfileDelivered, body); err != nil {
		return fmt.Errorf("confirm profile %s: %w", profileID, err)
	}
	return nil
}

func (c *Client) publishWithRetry(ctx context.Context, routingKey, msgType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
			if err := c.reconnect(); err != nil {
				lastErr = err
				c.recordFailure()
				continue
			}
		}

		lastErr = c.publish(ctx, routingKey, msgType, body)
		if lastErr == nil {
			c.recordSuccess()
			return nil
		}
		c.recordFailure()
		if !isConnectionError(lastErr) {
			break
		}
		slog.WarnContext(ctx, "Publish failed, retrying", "attempt", attempt+1, "routing_key", routingKey, "error", lastErr)
	}
	return lastErr
}

func (c *Client) publish(ctx context.Context, routingKey, msgType string, body []byte) error {
	ch := c.currentChannel()
	if ch == nil {
		return amqp091.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Type:         msgType,
			Body:         body,
		},
	)
}

// ConsumeProfiles hands each profile.registered message to handler until ctx
// is done.
func (c *Client) ConsumeProfiles(ctx context.Context, handler func(context.Context, *ProfileRegisteredMessage) error) error {
	return c.consume(ctx, c.queueName, func(ctx context.Context, body []byte) (string, error) {
		msg, err := ProfileRegisteredMessageFromJSON(body)
		if err != nil {
			return "", errUndecodable{err}
		}
		return msg.Profile.ID, handler(ctx, msg)
	})
}

// ConsumeDeliveries hands each profile.delivered confirmation to handler
// until ctx is done.
func (c *Client) ConsumeDeliveries(ctx context.Context, handler func(context.Context, *ProfileDeliveredMessage) error) error {
	return c.consume(ctx, c.deliveredQueue, func(ctx context.Context, body []byte) (string, error) {
		msg, err := ProfileDeliveredMessageFromJSON(body)
		if err != nil {
			return "", errUndecodable{err}
		}
		return msg.ProfileID, handler(ctx, msg)
	})
}

type errUndecodable struct{ err error }

func (e errUndecodable) Error() string { return "undecodable message: " + e.err.Error() }
func (e errUndecodable) Unwrap() error { return e.err }

// settle acks handled deliveries. A failed delivery is requeued once;
// undecodable ones and second failures are dropped.
func settle(d amqp091.Delivery, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}
	var bad errUndecodable
	requeue := !errors.As(err, &bad) && !d.Redelivered
	_ = d.Nack(false, requeue)
}

func (c *Client) consume(ctx context.Context, queue string, handle func(context.Context, []byte) (string, error)) error {
	ch := c.currentChannel()
	if ch == nil {
		return amqp091.ErrClosed
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	slog.InfoContext(ctx, "Started consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel for %s closed", queue)
			}

			profileID, err := handle(ctx, delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"queue", queue,
					"profile_id", profileID,
					"redelivered", delivery.Redelivered,
					"error", err)
			} else {
				slog.InfoContext(ctx, "Processed message", "queue", queue, "profile_id", profileID)
			}
			settle(delivery, err)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
