package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultHeartbeat   = 10 * time.Second
)

// Channel is the part of *amqp091.Channel used by AMQPClient.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Connection is the part of *amqp091.Connection used by AMQPClient.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error
	Close() error
}

// Dialer opens a broker connection for the given URL.
type Dialer func(url string) (Connection, error)

type amqpConnection struct {
	*amqp091.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat: DefaultHeartbeat,
		Locale:    "en_US",
		Dial:      amqp091.DefaultDial(DefaultDialTimeout),
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Options configures AMQPClient.
type Options struct {
	URL           string
	QueueName     string
	PrefetchCount int
	AppID         string
	Dialer        Dialer // defaults to DialAMQP
}

// AMQPClient owns one lazily established connection and channel to the broker,
// shared by the publishing and consuming sides of the process.
//
// Connect is guarded so that only one attempt is in flight; a failed attempt
// caches nothing. Once connected the client never reconnects on its own.
type AMQPClient struct {
	opts   Options
	logger *slog.Logger

	connMu sync.Mutex
	conn   Connection
	ch     Channel

	// chMu serializes operations on ch.
	chMu sync.Mutex
}

// NewAMQPClient builds an unconnected client. No network I/O happens here.
func NewAMQPClient(opts Options, logger *slog.Logger) (*AMQPClient, error) {
	if opts.QueueName == "" {
		return nil, ErrInvalidQueueName
	}
	if opts.Dialer == nil {
		opts.Dialer = DialAMQP
	}
	return &AMQPClient{
		opts:   opts,
		logger: logger.With("component", "amqp_client", "queue", opts.QueueName),
	}, nil
}

// QueueName returns the durable queue this client publishes to and consumes from.
func (c *AMQPClient) QueueName() string {
	return c.opts.QueueName
}

// Connect returns the cached channel, establishing the connection, the channel
// and the durable queue on first use.
func (c *AMQPClient) Connect(ctx context.Context) (Channel, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.ch != nil {
		return c.ch, nil
	}
	if c.opts.URL == "" {
		return nil, fmt.Errorf("%w: %w", ErrBrokerUnavailable, ErrBrokerURLMissing)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	conn, err := c.opts.Dialer(c.opts.URL)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to connect to AMQP broker", "error", err)
		return nil, fmt.Errorf("%w: dial: %w", ErrBrokerUnavailable, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %w", ErrBrokerUnavailable, err)
	}

	if c.opts.PrefetchCount > 0 {
		if err := ch.Qos(c.opts.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("%w: set qos: %w", ErrBrokerUnavailable, err)
		}
	}

	if _, err := ch.QueueDeclare(
		c.opts.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare queue %q: %w", ErrBrokerUnavailable, c.opts.QueueName, err)
	}

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			c.logger.Error("AMQP connection closed by broker", "code", amqpErr.Code, "reason", amqpErr.Reason)
		}
	}()

	c.conn = conn
	c.ch = ch
	c.logger.InfoContext(ctx, "Connected to AMQP broker", "prefetch", c.opts.PrefetchCount)
	return ch, nil
}

// Publish sends body to the queue as a persistent JSON message. It returns once
// the frame is handed to the broker.
func (c *AMQPClient) Publish(ctx context.Context, body []byte) error {
	ch, err := c.Connect(ctx)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		AppId:        c.opts.AppID,
		Body:         body,
	}

	c.chMu.Lock()
	defer c.chMu.Unlock()
	if err := ch.PublishWithContext(ctx, "", c.opts.QueueName, false, false, msg); err != nil {
		return fmt.Errorf("publish to %q: %w", c.opts.QueueName, err)
	}
	return nil
}

// Consume registers a manual-ack consumer on the queue and returns the stream
// of deliveries. The stream closes when ctx is cancelled (the consumer is then
// cancelled on the broker) or when the broker closes the delivery channel.
func (c *AMQPClient) Consume(ctx context.Context) (<-chan Message, error) {
	ch, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	tag := "movielib-export-" + uuid.NewString()

	c.chMu.Lock()
	deliveries, err := ch.Consume(
		c.opts.QueueName,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	c.chMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", c.opts.QueueName, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.cancelConsumer(tag)
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("AMQP delivery channel closed", "consumer_tag", tag)
					return
				}
				select {
				case out <- &amqpMessage{delivery: d, client: c}:
				case <-ctx.Done():
					// d stays unacked and is redelivered once the channel closes.
					c.cancelConsumer(tag)
					return
				}
			}
		}
	}()

	c.logger.InfoContext(ctx, "Consuming from queue", "consumer_tag", tag)
	return out, nil
}

func (c *AMQPClient) cancelConsumer(tag string) {
	c.connMu.Lock()
	ch := c.ch
	c.connMu.Unlock()
	if ch == nil {
		return
	}

	c.chMu.Lock()
	defer c.chMu.Unlock()
	if err := ch.Cancel(tag, false); err != nil {
		c.logger.Warn("Failed to cancel AMQP consumer", "consumer_tag", tag, "error", err)
	}
}

// Close closes the channel and the connection. The client can connect again afterwards.
func (c *AMQPClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.ch == nil {
		return nil
	}

	c.chMu.Lock()
	chErr := c.ch.Close()
	c.chMu.Unlock()
	connErr := c.conn.Close()

	c.ch = nil
	c.conn = nil

	if chErr != nil {
		return fmt.Errorf("close channel: %w", chErr)
	}
	if connErr != nil {
		return fmt.Errorf("close connection: %w", connErr)
	}
	return nil
}
