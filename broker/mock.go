package broker

import (
	"github.com/streadway/amqp"
)

// MockConnection is a mock Connection for tests.
type MockConnection struct {
	MockChannel Channel
	ChannelErr  error
	CloseErr    error
}

func (m *MockConnection) Channel() (Channel, error) {
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

func (m *MockConnection) Close() error { return m.CloseErr }

// MockChannel is a mock Channel for tests. Deliveries written to
// Deliveries before Consume is called are what Run will receive.
type MockChannel struct {
	Deliveries chan amqp.Delivery

	QueueDeclareErr error
	ConsumeErr      error
	CloseErr        error

	LastQueueName string
}

func (m *MockChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	m.LastQueueName = name
	if m.QueueDeclareErr != nil {
		return amqp.Queue{}, m.QueueDeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (m *MockChannel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	return m.Deliveries, nil
}

func (m *MockChannel) Close() error { return m.CloseErr }

// MockDialer is a mock Dialer for tests.
type MockDialer struct {
	MockConnection Connection
	DialErr        error
	LastURL        string
}

func (m *MockDialer) Dial(url string) (Connection, error) {
	m.LastURL = url
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.MockConnection, nil
}

// NewMockDialer wires a MockDialer -> MockConnection -> MockChannel chain
// ready for a Consumer to dial and declare against.
func NewMockDialer() (*MockDialer, *MockChannel) {
	ch := &MockChannel{Deliveries: make(chan amqp.Delivery, 16)}
	conn := &MockConnection{MockChannel: ch}
	return &MockDialer{MockConnection: conn}, ch
}

// MockAcknowledger records Ack/Nack/Reject calls so tests can assert on
// delivery outcomes; a real amqp.Delivery panics on these calls unless an
// Acknowledger is attached.
type MockAcknowledger struct {
	Acked   []uint64
	Nacked  []uint64
	Requeue []bool
}

func (m *MockAcknowledger) Ack(tag uint64, _ bool) error {
	m.Acked = append(m.Acked, tag)
	return nil
}

func (m *MockAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	m.Nacked = append(m.Nacked, tag)
	m.Requeue = append(m.Requeue, requeue)
	return nil
}

func (m *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}
