package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_Defaults(t *testing.T) {
	ch := &mockChannel{}
	p, err := newPublisher(ch, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultExchange}, ch.exchanges)
	assert.Equal(t, DefaultRoutingKey, p.routingKey)
}

func TestNewPublisher_DeclareFailure(t *testing.T) {
	ch := &mockChannel{declareErr: errors.New("access refused")}
	_, err := newPublisher(ch, "ledger", "resolved")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare exchange")
}

func TestPublishReviewResolved(t *testing.T) {
	ch := &mockChannel{}
	p, err := newPublisher(ch, "ledger", "review.gift")
	require.NoError(t, err)
	at := time.Date(2025, 5, 17, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	entry := "entry-1"
	event := service.ReviewResolved{
		ResolvedAt:    at,
		LinkedEntryID: &entry,
		TransactionID: "p1",
		Domain:        model.DomainGiftMoney,
		Outcome:       model.OutcomeWithEntry,
	}
	require.NoError(t, p.PublishReviewResolved(context.Background(), event))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "review.gift", ch.keys[0])
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.NotEmpty(t, msg.MessageId)
	assert.Equal(t, at, msg.Timestamp)

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, MessageType, decoded.Type)
	assert.Equal(t, "p1", decoded.Event.TransactionID)
	require.NotNil(t, decoded.Event.LinkedEntryID)
	assert.Equal(t, "entry-1", *decoded.Event.LinkedEntryID)
}

func TestPublishReviewResolved_Errors(t *testing.T) {
	ch := &mockChannel{publishErr: amqp091.ErrClosed}
	p, err := newPublisher(ch, "", "")
	require.NoError(t, err)

	err = p.PublishReviewResolved(context.Background(), service.ReviewResolved{TransactionID: "p1"})
	require.ErrorIs(t, err, amqp091.ErrClosed)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	require.NoError(t, p.Close())

	err = p.PublishReviewResolved(context.Background(), service.ReviewResolved{TransactionID: "p1"})
	require.ErrorIs(t, err, ErrClosed)
}
