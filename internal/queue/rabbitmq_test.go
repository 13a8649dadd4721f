package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	prefetch   int
	declareErr error
	closed     bool
	deliveries chan amqp.Delivery
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	if durable {
		f.declared = append(f.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("auto ack not expected")
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQSendPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	client, err := newRabbitMQClient(ch, "jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"jobs"}, ch.declared)

	require.NoError(t, client.Send(context.Background(), NewAdvanceMessage("app-1", "req-1")))
	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "jobs", ch.keys[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "req-1", pub.MessageId)

	decoded, err := DecodeMessage(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, "app-1", decoded.ApplicationID)
}

func TestRabbitMQConsumeSetsPrefetch(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	client, err := newRabbitMQClient(ch, "jobs")
	require.NoError(t, err)

	_, err = client.Consume("worker-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.prefetch)
}

func TestRabbitMQDeclareFailureClosesChannel(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := newRabbitMQClient(ch, "jobs")
	require.Error(t, err)
	assert.True(t, ch.closed)
}
