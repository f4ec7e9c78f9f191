package messagebroker

import "errors"

var (
	// ErrBrokerUnavailable wraps every failure to establish the connection,
	// open the channel or declare the queue.
	ErrBrokerUnavailable = errors.New("message broker unavailable")
	// ErrBrokerURLMissing is returned (wrapped in ErrBrokerUnavailable) when no AMQP URL is configured.
	ErrBrokerURLMissing = errors.New("AMQP URL not configured")
	ErrInvalidQueueName = errors.New("queue name cannot be empty")
)
