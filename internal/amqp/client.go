package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

// Client wraps one AMQP connection carrying two routing keys on a direct
// exchange: expense change events and challenge completion events. Publishes
// go through a circuit breaker so a dead broker degrades to logged drops
// instead of blocking the request path.
type Client struct {
	url             string
	exchangeName    string
	expenseQueue    string
	completionQueue string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	// Circuit breaker state
	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, expenseQueue, completionQueue string) (*Client, error) {
	client := &Client{
		url:             url,
		exchangeName:    exchangeName,
		expenseQueue:    expenseQueue,
		completionQueue: completionQueue,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	return nil
}

func (c *Client) setup() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.expenseQueue, c.completionQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// routing key matches the queue name on a direct exchange
		err = c.channel.QueueBind(queue, queue, c.exchangeName, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishExpenseChanged implements services.EventPublisher
func (c *Client) PublishExpenseChanged(ctx context.Context, userID string, expenseID int64, op string) error {
	msg := NewExpenseChangedMessage(userID, expenseID, op)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.expenseQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published expense change event",
		"user_id", userID,
		"expense_id", expenseID,
		"op", op,
		"queue", c.expenseQueue)

	return nil
}

// ChallengeCompleted implements services.Notifier
func (c *Client) ChallengeCompleted(ctx context.Context, enrollment core.Enrollment, challenge core.Challenge) error {
	msg := &ChallengeCompletedMessage{
		EnrollmentID:  enrollment.ID,
		ChallengeID:   challenge.ID,
		UserID:        enrollment.UserID,
		Title:         challenge.Title,
		CurrentAmount: enrollment.CurrentAmount,
		TargetAmount:  challenge.TargetAmount,
	}
	if enrollment.CompletedAt != nil {
		msg.CompletedAt = *enrollment.CompletedAt
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.completionQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published challenge completion event",
		"enrollment_id", enrollment.ID,
		"challenge_id", challenge.ID,
		"user_id", enrollment.UserID,
		"queue", c.completionQueue)

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping publish to %s", routingKey)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // make message persistent
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			go c.reconnectWithBackoff()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeExpenseChanged delivers expense change events to the handler with
// manual acks. Malformed messages are rejected without requeue; handler
// errors requeue the delivery.
func (c *Client) ConsumeExpenseChanged(ctx context.Context, handler func(*ExpenseChangedMessage) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	msgs, err := channel.Consume(
		c.expenseQueue, // queue
		"",             // consumer
		false,          // auto-ack (we want manual ack)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming expense change events", "queue", c.expenseQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := ExpenseChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"user_id", msg.UserID,
					"expense_id", msg.ExpenseID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed expense change event",
				"user_id", msg.UserID,
				"expense_id", msg.ExpenseID,
				"op", msg.Op)
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	state := atomic.LoadInt32(&c.state)
	if state == StateClosed || state == StateHalfOpen {
		return false
	}

	// open: allow a probe after the timeout
	if time.Since(c.lastFailure) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}

	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) reconnectWithBackoff() {
	for attempt := 0; ; attempt++ {
		delay := exponentialBackoff(attempt)
		slog.Warn("Reconnecting to AMQP broker", "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)

		if err := c.connect(); err != nil {
			slog.Error("AMQP reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}

		slog.Info("AMQP reconnected")
		c.recordSuccess()
		return
	}
}

func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
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
