package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/internal/logging"
	"github.com/centosci/kaijs-bridge/model"
)

// Config names the queue to consume from and the provider identity stamped
// onto every envelope this consumer hands to the file-queue.
type Config struct {
	URL          string
	QueueName    string
	ProviderName string
}

// Consumer dials the broker, declares its queue, and forwards every
// decodable delivery into a Queue as a FileQueueMessage. It never interprets the
// message body beyond decoding it as JSON: routing and validation are the
// loader side's job.
type Consumer struct {
	dialer Dialer
	cfg    Config
	fq     *fqueue.Queue
	log    *logging.ContextLogger

	conn Connection
	ch   Channel
}

// NewConsumer builds a Consumer using the real AMQP dialer.
func NewConsumer(cfg Config, fq *fqueue.Queue, log *logging.ContextLogger) *Consumer {
	return NewConsumerWithDialer(cfg, fq, log, RealDialer{})
}

// NewConsumerWithDialer builds a Consumer with an injected Dialer, for tests.
func NewConsumerWithDialer(cfg Config, fq *fqueue.Queue, log *logging.ContextLogger, dialer Dialer) *Consumer {
	return &Consumer{dialer: dialer, cfg: cfg, fq: fq, log: log}
}

// Connect dials the broker and declares the configured queue.
func (c *Consumer) Connect() error {
	conn, err := c.dialer.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("broker: dialing %s: %w", c.cfg.URL, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("broker: opening channel: %w", err)
	}

	if _, err := ch.QueueDeclare(c.cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("broker: declaring queue %s: %w", c.cfg.QueueName, err)
	}

	c.conn = conn
	c.ch = ch
	return nil
}

// Run consumes deliveries until the channel is closed or stop is closed.
// Every delivery whose body decodes as JSON is pushed to the file-queue and
// acked; a push failure nacks the delivery for broker-side redelivery rather
// than losing the message. A delivery whose body does not decode is nacked
// without requeue, so the broker drops it.
func (c *Consumer) Run(stop <-chan struct{}) error {
	deliveries, err := c.ch.Consume(c.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("broker: starting consume on %s: %w", c.cfg.QueueName, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(delivery)
		}
	}
}

func (c *Consumer) handle(delivery amqp.Delivery) {
	msg, err := c.toFileQueueMessage(delivery)
	if err != nil {
		c.log.WithError(err).Error("dropping undecodable delivery")
		delivery.Nack(false, false)
		return
	}

	if err := c.fq.Push(msg); err != nil {
		c.log.WithError(err).Error("failed to push envelope to file-queue, requeueing delivery")
		delivery.Nack(false, true)
		return
	}

	delivery.Ack(false)
}

func (c *Consumer) toFileQueueMessage(delivery amqp.Delivery) (*model.FileQueueMessage, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(delivery.Body, &body); err != nil {
		return nil, fmt.Errorf("broker: decoding delivery body: %w", err)
	}

	extra := make(map[string]interface{}, len(delivery.Headers))
	for k, v := range delivery.Headers {
		extra[k] = v
	}

	return &model.FileQueueMessage{
		BrokerMsgID:       delivery.MessageId,
		BrokerTopic:       delivery.RoutingKey,
		Body:              body,
		BrokerExtra:       extra,
		ProviderName:      c.cfg.ProviderName,
		ProviderTimestamp: time.Now().Unix(),
	}, nil
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
