package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one delivery body. Returning false re-queues the message.
type HandlerFunc func(body []byte) bool

// Consumer reads from a durable queue bound to a topic exchange and dispatches each
// delivery to the handler registered for its routing key.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
	done   chan struct{}
}

func NewConsumer(amqpURL string, logger *slog.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch, logger: logger, done: make(chan struct{})}, nil
}

func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]HandlerFunc) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]HandlerFunc)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer close(c.done)
		for d := range msgs {
			dispatch(c.logger, handlers, d)
		}
	}()

	return nil
}

// acknowledger is the subset of amqp.Delivery used by dispatch.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type delivery struct {
	acknowledger
	routingKey string
	body       []byte
}

func dispatch(logger *slog.Logger, handlers map[string]HandlerFunc, d amqp.Delivery) {
	deliver(logger, handlers, delivery{acknowledger: d, routingKey: d.RoutingKey, body: d.Body})
}

func deliver(logger *slog.Logger, handlers map[string]HandlerFunc, d delivery) {
	handler, ok := handlers[d.routingKey]
	if !ok {
		logger.Warn("no handler for routing key; acknowledging to drop", "component", "rabbitmq_consumer", "routing_key", d.routingKey)
		_ = d.Ack(false)
		return
	}
	if handler(d.body) {
		_ = d.Ack(false)
		return
	}
	logger.Warn("handler failed; re-queuing", "component", "rabbitmq_consumer", "routing_key", d.routingKey)
	_ = d.Nack(false, true)
}

// Done is closed once the delivery loop has stopped.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Close closes the channel, which ends the delivery loop, then the connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
