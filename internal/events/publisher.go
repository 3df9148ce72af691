// Package events publishes ledger detection events to an AMQP broker so
// downstream services learn about new payments without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
)

// DefaultExchange is the topic exchange detection events are published to
const DefaultExchange = "payments"

// Publisher announces newly detected ledger entries
type Publisher interface {
	PublishDetected(ctx context.Context, entries []*models.LedgerEntry) error
	Close() error
}

// DetectedEvent is the message body of a detection event
type DetectedEvent struct {
	ID         string          `json:"id"`
	Network    string          `json:"network"`
	TxHash     string          `json:"txHash"`
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	DetectedAt time.Time       `json:"detectedAt"`
}

// RoutingKey returns the topic routing key for an entry, e.g. ledger.detected.trc20
func RoutingKey(e *models.LedgerEntry) string {
	return "ledger.detected." + strings.ToLower(string(e.Network))
}

// channel is the subset of *amqp.Channel the publisher needs
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes to a topic exchange over one reusable channel
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *logging.Logger

	mu sync.Mutex
	ch channel
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(uri, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	p.logger.WithField("exchange", p.exchange).Info("Connected to message broker")
	return p, nil
}

func newPublisher(ch channel, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{
		exchange: exchange,
		ch:       ch,
		logger:   logging.Component("events"),
	}, nil
}

// PublishDetected publishes one persistent message per entry. It stops at
// the first failure and returns it.
func (p *AMQPPublisher) PublishDetected(ctx context.Context, entries []*models.LedgerEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if p.conn == nil {
			return fmt.Errorf("publisher closed")
		}
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
		p.ch = ch
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := json.Marshal(DetectedEvent{
			ID:         e.ID,
			Network:    string(e.Network),
			TxHash:     e.TxHash,
			Address:    e.Address,
			Amount:     e.Amount,
			DetectedAt: e.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := amqp.Publishing{
			Headers:      amqp.Table{"x-tx-hash": e.TxHash},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		}
		if err := p.ch.Publish(p.exchange, RoutingKey(e), false, false, msg); err != nil {
			// the channel is unusable after a publish error
			p.ch.Close()
			p.ch = nil
			return fmt.Errorf("publish %s: %w", e.TxHash, err)
		}
	}
	return nil
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.logger.WithError(err).Warn("Error closing broker channel")
		}
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// NoopPublisher discards events; used when no broker is configured
type NoopPublisher struct{}

// PublishDetected does nothing
func (NoopPublisher) PublishDetected(context.Context, []*models.LedgerEntry) error { return nil }

// Close does nothing
func (NoopPublisher) Close() error { return nil }
