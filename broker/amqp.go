// Package broker models the AMQP listener collaborator: it shows how an
// envelope arrives from the bus and is written into the file-queue, without
// implementing the full listener's TLS/SASL auth, failover host rotation,
// or link/session recovery — those stay the listener's concern per the
// bridge's stated non-goals.
package broker

import (
	"github.com/streadway/amqp"
)

// Connection abstracts an AMQP connection so tests can inject a fake one.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel abstracts the subset of an AMQP channel the consumer needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Dialer abstracts connecting to the broker.
type Dialer interface {
	Dial(url string) (Connection, error)
}

// RealConnection wraps a real amqp.Connection.
type RealConnection struct {
	conn *amqp.Connection
}

func (c *RealConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &RealChannel{ch: ch}, nil
}

func (c *RealConnection) Close() error { return c.conn.Close() }

// RealChannel wraps a real amqp.Channel.
type RealChannel struct {
	ch *amqp.Channel
}

func (c *RealChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c *RealChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (c *RealChannel) Close() error { return c.ch.Close() }

// RealDialer dials a real AMQP broker.
type RealDialer struct{}

func (RealDialer) Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &RealConnection{conn: conn}, nil
}
