// Package amqp carries transaction events over RabbitMQ: the web server
// publishes one per stored record, the mirror worker consumes them from a
// durable queue and other web instances use them to refresh live feeds.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/log"
)

const (
	publishTimeout   = 5 * time.Second
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	maxRetryDelay    = 30 * time.Second
	prefetch         = 10
)

var errDeliveriesClosed = errors.New("delivery channel closed")

type Client struct {
	url      string
	exchange string
	queue    string
	logger   *log.Logger
	breaker  *breaker

	mu   sync.Mutex
	conn *amqp091.Connection
	pub  *amqp091.Channel
}

// NewClient dials url and declares the durable topic exchange and, when
// queue is set, the durable mirror queue bound to transaction.created.
func NewClient(url, exchange, queue string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	c := &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger.WithComponent(log.ComponentAMQP),
		breaker:  newBreaker(breakerThreshold, breakerCooldown),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err == nil {
		err = c.declare(ch)
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("prepare AMQP channel: %w", err)
	}

	c.mu.Lock()
	prev := c.conn
	c.conn, c.pub = conn, ch
	c.mu.Unlock()
	if prev != nil && !prev.IsClosed() {
		_ = prev.Close()
	}
	return nil
}

func (c *Client) declare(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}
	if c.queue == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	return ch.QueueBind(c.queue, RoutingTransactionCreated, c.exchange, false, nil)
}

// publisher returns the shared publishing channel, redialing when the
// broker closed it.
func (c *Client) publisher() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch := c.pub
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub, nil
}

// PublishTransactionCreated sends ev as a persistent message. Repeated
// failures open a circuit breaker; while open, publishes fail fast with
// ErrCircuitOpen.
func (c *Client) PublishTransactionCreated(ctx context.Context, ev TransactionEvent) error {
	if err := c.breaker.allow(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ch, err := c.publisher()
	if err != nil {
		c.breaker.failure()
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, c.exchange, RoutingTransactionCreated, false, false, msg); err != nil {
		c.breaker.failure()
		return fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	c.breaker.success()
	c.logger.DebugContext(ctx, "Published transaction event", log.FieldTransactionID, ev.ID, log.FieldUserID, ev.UserID)
	return nil
}

// ConsumeTransactions hands events from the durable mirror queue to handle
// until ctx is done. A handler error drops the message; the mirror poll
// loop retries the record. Lost connections are redialed with backoff.
func (c *Client) ConsumeTransactions(ctx context.Context, handle func(context.Context, *TransactionEvent) error) error {
	sub := func(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
		return ch.Consume(c.queue, "", false, false, false, false, nil)
	}
	return c.consume(ctx, "mirror", sub, func(d amqp091.Delivery) {
		ev, err := TransactionEventFromJSON(d.Body)
		if err == nil {
			err = handle(ctx, ev)
		}
		if err != nil {
			c.logger.ErrorContext(ctx, "Dropping transaction event", "message_id", d.MessageId, log.FieldError, err)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
	})
}

// ListenChanges calls onEvent for every event published by an instance
// other than instanceID. Each listener gets an exclusive, auto-deleted
// queue.
func (c *Client) ListenChanges(ctx context.Context, instanceID string, onEvent func(context.Context, *TransactionEvent)) error {
	sub := func(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return nil, fmt.Errorf("declare listener queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, RoutingTransactionCreated, c.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind listener queue: %w", err)
		}
		return ch.Consume(q.Name, "", true, true, false, false, nil)
	}
	return c.consume(ctx, "changes", sub, func(d amqp091.Delivery) {
		ev, err := TransactionEventFromJSON(d.Body)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "Ignoring malformed change event", log.FieldError, err)
		case ev.InstanceID != instanceID:
			onEvent(ctx, ev)
		}
	})
}

type subscribeFunc func(*amqp091.Channel) (<-chan amqp091.Delivery, error)

func (c *Client) consume(ctx context.Context, name string, sub subscribeFunc, handle func(amqp091.Delivery)) error {
	for attempt := 0; ; attempt++ {
		started, err := c.consumeOnce(ctx, name, sub, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !transient(err) {
			return err
		}
		if started {
			attempt = 0
		}
		wait := retryDelay(attempt)
		c.logger.WarnContext(ctx, "AMQP consumer lost, retrying", "consumer", name, "retry_in", wait, log.FieldError, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// consumeOnce reports whether deliveries started flowing before it failed.
func (c *Client) consumeOnce(ctx context.Context, name string, sub subscribeFunc, handle func(amqp091.Delivery)) (bool, error) {
	if _, err := c.publisher(); err != nil {
		return false, err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	ch, err := conn.Channel()
	if err != nil {
		return false, err
	}
	defer ch.Close()

	deliveries, err := sub(ch)
	if err != nil {
		return false, err
	}
	c.logger.InfoContext(ctx, "AMQP consumer started", "consumer", name)
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return true, errDeliveriesClosed
			}
			handle(d)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		_ = c.pub.Close()
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// retryDelay is 1s doubled per attempt, capped at 30s.
func retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt >= 5 {
		return maxRetryDelay
	}
	return min(time.Second<<attempt, maxRetryDelay)
}

// transient reports whether err is a connection problem worth redialing
// for, as opposed to a broker refusal such as a missing queue.
func transient(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		errDeliveriesClosed, amqp091.ErrClosed, io.EOF, io.ErrUnexpectedEOF,
		net.ErrClosed, syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover || amqpErr.Code == amqp091.ConnectionForced
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
