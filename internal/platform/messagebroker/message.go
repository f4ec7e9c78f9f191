package messagebroker

import (
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Message is one delivery from the queue. Ack and Nack go through the
// client's channel lock, so they are safe to call from any goroutine.
type Message interface {
	Body() []byte
	MessageID() string
	Redelivered() bool
	Timestamp() time.Time
	Ack() error
	Nack(requeue bool) error
}

type amqpMessage struct {
	delivery amqp091.Delivery
	client   *AMQPClient
}

func (m *amqpMessage) Body() []byte         { return m.delivery.Body }
func (m *amqpMessage) MessageID() string    { return m.delivery.MessageId }
func (m *amqpMessage) Redelivered() bool    { return m.delivery.Redelivered }
func (m *amqpMessage) Timestamp() time.Time { return m.delivery.Timestamp }

func (m *amqpMessage) Ack() error {
	m.client.chMu.Lock()
	defer m.client.chMu.Unlock()
	return m.delivery.Ack(false)
}

func (m *amqpMessage) Nack(requeue bool) error {
	m.client.chMu.Lock()
	defer m.client.chMu.Unlock()
	return m.delivery.Nack(false, requeue)
}
