package jobs

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps a SyncJob with its RabbitMQ delivery information
type Message struct {
	Job         *SyncJob
	DeliveryTag uint64
	Channel     *amqp.Channel
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message
func (m *Message) Nack(requeue bool) error {
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

// GetJob returns the wrapped job
func (m *Message) GetJob() *SyncJob {
	return m.Job
}

var _ MessageInterface = (*Message)(nil)
