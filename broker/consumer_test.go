package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/internal/logging"
)

func testLogger() *logging.ContextLogger {
	return logging.Component("broker-test", "test")
}

func TestConsumer_ConnectDeclaresQueue(t *testing.T) {
	dialer, ch := NewMockDialer()
	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()

	c := NewConsumerWithDialer(Config{URL: "amqp://test", QueueName: "ci-events"}, q, testLogger(), dialer)
	require.NoError(t, c.Connect())
	assert.Equal(t, "ci-events", ch.LastQueueName)
	assert.Equal(t, "amqp://test", dialer.LastURL)
}

func TestConsumer_RunPushesDeliveryToFileQueueAndAcks(t *testing.T) {
	dialer, ch := NewMockDialer()
	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()

	c := NewConsumerWithDialer(Config{URL: "amqp://test", QueueName: "ci-events", ProviderName: "bus"}, q, testLogger(), dialer)
	require.NoError(t, c.Connect())

	body, err := json.Marshal(map[string]interface{}{"pipeline": map[string]interface{}{"id": "PIPE-1"}})
	require.NoError(t, err)

	ack := &MockAcknowledger{}
	ch.Deliveries <- amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   "org.centos.prod.ci.koji-build.test.queued",
		MessageId:    "msg-1",
		Body:         body,
	}
	close(ch.Deliveries)

	require.NoError(t, c.Run(make(chan struct{})))

	assert.Len(t, ack.Acked, 1)
	assert.Empty(t, ack.Nacked)

	length, err := q.Length()
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestConsumer_RunNacksUndecodableDelivery(t *testing.T) {
	dialer, ch := NewMockDialer()
	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()

	c := NewConsumerWithDialer(Config{URL: "amqp://test", QueueName: "ci-events"}, q, testLogger(), dialer)
	require.NoError(t, c.Connect())

	ack := &MockAcknowledger{}
	ch.Deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("not json")}
	close(ch.Deliveries)

	require.NoError(t, c.Run(make(chan struct{})))
	assert.Len(t, ack.Nacked, 1)
	assert.False(t, ack.Requeue[0])
}

func TestConsumer_RunStopsOnStopChannel(t *testing.T) {
	dialer, _ := NewMockDialer()
	q, err := fqueue.Make(t.TempDir(), fqueue.Options{})
	require.NoError(t, err)
	defer q.Stop()

	c := NewConsumerWithDialer(Config{URL: "amqp://test", QueueName: "ci-events"}, q, testLogger(), dialer)
	require.NoError(t, c.Connect())

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.Run(stop) }()

	close(stop)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}
