package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConnectionClosed is returned once every holder has released the connection.
var ErrConnectionClosed = errors.New("broker connection closed")

type dialFunc func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Connection is the process-wide broker connection. It is reference counted:
// every component that keeps it must Retain it and Close it when done, and
// the TCP connection is torn down when the last holder closes. A connection
// the broker dropped is re-dialed on the next Channel call.
type Connection struct {
	url    string
	config amqp.Config
	logger *slog.Logger
	dial   dialFunc

	mu     sync.Mutex
	conn   *amqp.Connection
	refs   int
	closed bool
}

// Dial connects to the broker at url. name is reported to the broker as the
// client connection name.
func Dial(url, name string, logger *slog.Logger) (*Connection, error) {
	c := newConnection(url, name, logger, amqp.DialConfig)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func newConnection(url, name string, logger *slog.Logger, dial dialFunc) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	props := amqp.NewConnectionProperties()
	if name != "" {
		props.SetClientConnectionName(name)
	}

	return &Connection{
		url:    url,
		config: amqp.Config{Properties: props},
		logger: logger,
		dial:   dial,
		refs:   1,
	}
}

// Retain registers another holder and returns the same connection.
func (c *Connection) Retain() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.refs++
	}
	return c
}

// Channel opens a new AMQP channel, re-dialing if the connection was lost.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	conn, err := c.connectLocked()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open broker channel: %w", err)
	}
	return ch, nil
}

// Close releases one holder. The underlying connection closes with the last one.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.refs--
	if c.refs > 0 {
		return nil
	}

	c.closed = true
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close broker connection: %w", err)
	}
	c.logger.Info("broker connection closed")
	return nil
}

// Refs reports the number of current holders.
func (c *Connection) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

func (c *Connection) connectLocked() (*amqp.Connection, error) {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	conn, err := c.dial(c.url, c.config)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-notify; ok && amqpErr != nil {
			c.logger.Error("broker connection lost", "code", amqpErr.Code, "reason", amqpErr.Reason)
		}
	}()

	c.conn = conn
	c.logger.Info("broker connection established")
	return conn, nil
}
