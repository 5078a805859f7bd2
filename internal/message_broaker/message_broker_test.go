package message_broaker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanBroker hands every published message to its single consumer.
type chanBroker struct {
	mu         sync.Mutex
	published  [][]byte
	publishErr error
	messages   chan []byte
}

func newChanBroker() *chanBroker {
	return &chanBroker{messages: make(chan []byte, 16)}
}

func (b *chanBroker) Publish(_ context.Context, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, message)
	b.messages <- message
	return nil
}

func (b *chanBroker) Consume(context.Context) (<-chan []byte, error) {
	return b.messages, nil
}

func (b *chanBroker) Close() error {
	close(b.messages)
	return nil
}

var sample = []types.QueueEntry{
	{Timestamp: 1709294400, ActionHashed: types.HashAction("a"), Instance: "d751713988987e9331980363e24189ce"},
	{Timestamp: 1709294460, ActionHashed: types.HashAction("b"), Instance: "d751713988987e9331980363e24189ce"},
}

func TestPublishEntries_OneMessagePerEntry(t *testing.T) {
	broker := newChanBroker()

	n, err := PublishEntries(context.Background(), broker, sample)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, broker.published, 2)

	var decoded types.QueueEntry
	require.NoError(t, json.Unmarshal(broker.published[1], &decoded))
	assert.Equal(t, sample[1], decoded)
}

func TestPublishEntries_StopsOnError(t *testing.T) {
	broker := newChanBroker()
	broker.publishErr = assert.AnError

	n, err := PublishEntries(context.Background(), broker, sample)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, n)
}

func TestConsumeEntries_DropsBadMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := newChanBroker()

	entries, err := ConsumeEntries(ctx, broker, zerolog.Nop())
	require.NoError(t, err)

	broker.messages <- []byte("not json")
	broker.messages <- []byte(`{"timestamp":5}`)
	_, err = PublishEntries(ctx, broker, sample)
	require.NoError(t, err)
	require.NoError(t, broker.Close())

	var got []types.QueueEntry
	for entry := range entries {
		got = append(got, entry)
	}
	assert.Equal(t, sample, got)
}

func TestConsumeEntries_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	broker := newChanBroker()

	entries, err := ConsumeEntries(ctx, broker, zerolog.Nop())
	require.NoError(t, err)

	_, err = PublishEntries(ctx, broker, sample[:1])
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-entries:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestRabbitMQ_Publishing(t *testing.T) {
	r := newRabbitMQ(nil, nil, config.RabbitMQConfig{Queue: "cron_control", ContentType: "application/vnd.cronctl+json"})
	assert.Equal(t, "cron_control", r.routingKey)

	msg := r.publishing([]byte(`{}`))
	assert.Equal(t, "application/vnd.cronctl+json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)
	assert.NotEqual(t, msg.MessageId, r.publishing(nil).MessageId)

	bound := newRabbitMQ(nil, nil, config.RabbitMQConfig{Exchange: "cron", Queue: "q", RoutingKey: "due"})
	assert.Equal(t, "due", bound.routingKey)
	assert.Equal(t, "application/json", bound.contentType)
}

func TestNewRabbitMQ_InvalidURL(t *testing.T) {
	_, err := NewRabbitMQ(config.RabbitMQConfig{URL: "http://localhost", Queue: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq: dial")
}
