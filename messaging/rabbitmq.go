package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	EventsExchange = "riderx_events"

	maxRetries    = 10
	retryInterval = 3 * time.Second
)

// queueBindings are the durable queues downstream consumers read from.
var queueBindings = []struct {
	Queue      string
	RoutingKey string
}{
	{"crash_reports", "crash.*"},
	{"ride_alerts", "ride.alert.*"},
}

// Connection wraps an AMQP connection with a dedicated publish channel and
// reconnects in the background when the broker drops it.
type Connection struct {
	url         string
	conn        *amqp.Connection
	pubChannel  *amqp.Channel
	mu          sync.RWMutex
	isConnected bool
	notifyClose chan *amqp.Error
	done        chan struct{}
	closeOnce   sync.Once
}

func NewConnection(url string) (*Connection, error) {
	c := &Connection{
		url:  url,
		done: make(chan struct{}),
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = c.connect(); err != nil {
			logrus.Warnf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, maxRetries, err)
			time.Sleep(retryInterval)
			continue
		}
		if err := c.SetupTopology(); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to setup RabbitMQ topology: %w", err)
		}
		logrus.Info("Connected to RabbitMQ")
		go c.reconnectLoop()
		return c, nil
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d retries: %w", maxRetries, err)
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open publisher channel: %w", err)
	}

	c.conn = conn
	c.pubChannel = ch
	c.isConnected = true
	c.notifyClose = make(chan *amqp.Error, 1)
	c.conn.NotifyClose(c.notifyClose)
	return nil
}

func (c *Connection) reconnectLoop() {
	for {
		c.mu.RLock()
		notifyClose := c.notifyClose
		c.mu.RUnlock()

		select {
		case <-c.done:
			return
		case err, ok := <-notifyClose:
			if !ok || err == nil {
				return
			}
			logrus.Errorf("RabbitMQ connection lost: %v", err)

			c.mu.Lock()
			c.isConnected = false
			c.mu.Unlock()

			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect retries with growing backoff until connected or closed.
func (c *Connection) reconnect() bool {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		if err := c.connect(); err != nil {
			logrus.Warnf("Failed to reconnect to RabbitMQ: %v", err)
			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		if err := c.SetupTopology(); err != nil {
			logrus.Errorf("Failed to re-declare RabbitMQ topology: %v", err)
			continue
		}
		logrus.Info("RabbitMQ connection re-established")
		return true
	}
}

// SetupTopology declares the events exchange and its queues.
func (c *Connection) SetupTopology() error {
	c.mu.RLock()
	if !c.isConnected {
		c.mu.RUnlock()
		return fmt.Errorf("RabbitMQ is not connected")
	}
	ch, err := c.conn.Channel()
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to open setup channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", EventsExchange, err)
	}
	for _, b := range queueBindings {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.Queue, err)
		}
	}
	return nil
}

// Publish sends a persistent JSON message. It is safe for concurrent use.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isConnected {
		return fmt.Errorf("RabbitMQ is not connected")
	}
	return c.pubChannel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Close shuts down the reconnect loop and the connection.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.isConnected = false
		if c.pubChannel != nil {
			c.pubChannel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		logrus.Info("RabbitMQ connection closed")
	})
}
