package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func entry(network types.Network, hash, amount string) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:        "id-" + hash,
		Network:   network,
		TxHash:    hash,
		Address:   "addr",
		Amount:    decimal.RequireFromString(amount),
		Status:    types.StatusConfirmed,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishDetected(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"payments:topic"}, ch.declared)

	err = p.PublishDetected(context.Background(), []*models.LedgerEntry{
		entry(types.NetworkTRC20, "aa", "5"),
		entry(types.NetworkBEP20, "0xbb", "2.5"),
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 2)

	first := ch.published[0]
	assert.Equal(t, "payments", first.exchange)
	assert.Equal(t, "ledger.detected.trc20", first.key)
	assert.Equal(t, "application/json", first.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), first.msg.DeliveryMode)
	assert.Equal(t, "id-aa", first.msg.MessageId)

	var ev DetectedEvent
	require.NoError(t, json.Unmarshal(ch.published[1].msg.Body, &ev))
	assert.Equal(t, "BEP20", ev.Network)
	assert.Equal(t, "0xbb", ev.TxHash)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "ledger.detected.bep20", ch.published[1].key)
}

func TestPublishDetected_ErrorDropsChannel(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newPublisher(ch, "custom")
	require.NoError(t, err)

	err = p.PublishDetected(context.Background(), []*models.LedgerEntry{entry(types.NetworkTRC20, "aa", "1")})
	require.Error(t, err)
	assert.True(t, ch.closed)

	// no connection to reopen from
	err = p.PublishDetected(context.Background(), []*models.LedgerEntry{entry(types.NetworkTRC20, "aa", "1")})
	assert.ErrorContains(t, err, "publisher closed")
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishDetected(context.Background(), nil))
	assert.NoError(t, p.Close())
}
