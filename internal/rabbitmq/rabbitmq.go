package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the part of MQConn the services depend on.
type Broker interface {
	Consume(queue string) (<-chan amqp.Delivery, error)
	ConsumeExchange(exchange string) (<-chan amqp.Delivery, error)
	PublishJSON(ctx context.Context, queue string, v any) error
	PublishExchangeJSON(ctx context.Context, exchange string, v any) error
}

type MQConn struct {
	conn *amqp.Connection

	mu  sync.Mutex
	pub *amqp.Channel
}

func New(url string) (*MQConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &MQConn{
		conn: conn,
		pub:  pub,
	}, nil
}

func (c *MQConn) Close() error {
	c.pub.Close()
	return c.conn.Close()
}

// Consume reads a durable work queue on its own channel with manual acks.
func (c *MQConn) Consume(queue string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, err
	}

	return ch.Consume(queue, "", false, false, false, false, nil)
}

// ConsumeExchange binds a private queue to a fanout exchange, so every
// instance of the service sees every event.
func (c *MQConn) ConsumeExchange(exchange string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, err
	}

	return ch.Consume(q.Name, "", false, true, false, false, nil)
}

func (c *MQConn) PublishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	return c.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (c *MQConn) PublishExchangeJSON(ctx context.Context, exchange string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pub.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}
	return c.pub.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
