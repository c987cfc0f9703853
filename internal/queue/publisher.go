package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/study-room-booking/internal/service"
)

// Publisher sends booking events to a durable RabbitMQ queue as
// persistent messages.  The connection is opened on first use and
// re-opened after a failure.  The mutex only guards the connection
// fields; dialing and publishing run without it.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
	retryAt time.Time
}

const (
	dialTimeout = 5 * time.Second
	dialBackoff = time.Second
)

// ErrBrokerUnavailable is returned without touching the network while
// another caller is dialing or shortly after a failed dial.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, logger: logger}
}

// Publish implements service.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev service.BookingEvent) error {
	msg, err := newPublishing(ev)
	if err != nil {
		return err
	}
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.drop(ch)
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func newPublishing(ev service.BookingEvent) (amqp.Publishing, error) {
	body, err := Encode(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.Booking.ID + ":" + ev.Type,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt.UTC(),
		Body:         body,
	}, nil
}

func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || time.Now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.retryAt = time.Now().Add(dialBackoff)
		return nil, err
	}
	p.reset()
	p.conn, p.ch = conn, ch
	p.logger.Info("Connected event publisher", zap.String("queue", p.queue))
	return ch, nil
}

// dial opens a connection and channel and declares the queue.  The dial
// timeout is the smaller of dialTimeout and what is left of ctx.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := declareQueue(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// drop forgets ch after a failed publish unless it was already replaced.
func (p *Publisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.reset()
	}
}

// reset must be called with p.mu held.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// declareQueue is idempotent.  Durable so messages survive broker restarts.
func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue declare %s: %w", name, err)
	}
	return q, nil
}
