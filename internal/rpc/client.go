package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/logging"
)

// DefaultTimeout bounds calls that do not specify their own timeout.
const DefaultTimeout = 10 * time.Second

var errClientClosed = errors.New("rpc client closed")

// Caller is the calling surface the domain gateway services depend on.
type Caller interface {
	Call(ctx context.Context, operation string, payload, result any, opts ...CallOption) error
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultTimeout overrides DefaultTimeout for every call on the client.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for events outside any call, such as
// replies that arrive after their caller gave up.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// CallOption configures one call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout bounds a single call.
func WithTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// Client multiplexes request/reply calls over one Transport. Replies are
// routed to the issuing call by correlation id, so any number of calls may be
// outstanding at once and replies may arrive in any order.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	newID     func() string

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient starts a client reading replies from transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		newID:     uuid.NewString,
		pending:   make(map[string]chan Message),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.dispatch()

	return c
}

// Call sends operation with payload and waits for exactly one correlated
// reply. On success the envelope data is decoded into result (which may be
// nil to discard it). Every failure is an *apperr.Error; transport failures,
// timeouts and malformed replies are internal errors naming the operation.
// Calls are never retried.
func (c *Client) Call(ctx context.Context, operation string, payload, result any, opts ...CallOption) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	options := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&options)
	}
	if options.timeout <= 0 {
		options.timeout = c.timeout
	}

	body, err := encodePayload(payload)
	if err != nil {
		return apperr.Internal(operation, "encode request payload", err)
	}

	correlationID := c.newID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx, span := logging.StartSpan(ctx, "rpc "+operation,
		slog.String("operation", operation),
		slog.String("correlation_id", correlationID),
	)
	defer func() { span.End(err) }()

	replies, err := c.register(correlationID)
	if err != nil {
		return apperr.Internal(operation, "client unavailable", err)
	}
	defer c.release(correlationID)

	callCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	req := Request{
		Operation:     operation,
		CorrelationID: correlationID,
		ContentType:   ContentTypeJSON,
		Body:          body,
		Expiration:    options.timeout,
	}
	if err := c.transport.Send(callCtx, req); err != nil {
		return apperr.Internal(operation, "send request", err)
	}

	select {
	case msg := <-replies:
		return c.decode(ctx, operation, msg, result)
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return apperr.Internal(operation, fmt.Sprintf("no reply within %s", options.timeout), callCtx.Err())
		}
		return apperr.Internal(operation, "call canceled", callCtx.Err())
	case <-c.done:
		return apperr.Internal(operation, "client closed", errClientClosed)
	}
}

// Pending reports how many calls are waiting for a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops reply dispatch. Calls still waiting fail immediately.
func (c *Client) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) register(correlationID string) (<-chan Message, error) {
	ch := make(chan Message, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClientClosed
	}
	c.pending[correlationID] = ch
	return ch, nil
}

func (c *Client) release(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	replies := c.transport.Replies()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-replies:
			if !ok {
				c.logger.Warn("rpc reply stream closed")
				c.shutdown()
				return
			}
			c.deliver(msg)
		}
	}
}

func (c *Client) deliver(msg Message) {
	c.mu.Lock()
	waiter, ok := c.pending[msg.CorrelationID]
	if ok {
		delete(c.pending, msg.CorrelationID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping reply without a waiting call", "correlation_id", msg.CorrelationID)
		return
	}

	// Buffered and removed from pending under the lock, so this never blocks.
	waiter <- msg
}

func (c *Client) decode(ctx context.Context, operation string, msg Message, result any) error {
	logger := logging.FromContext(ctx)

	if msg.Undeliverable {
		logger.Error("rpc request returned by broker")
		return apperr.Internal(operation, "no consumer bound for operation", nil)
	}

	env, err := DecodeEnvelope(msg.ContentType, msg.Body)
	if err != nil {
		echoed := redactBody(msg.Body)
		logger.Error("rpc reply rejected", "error", err, "body", echoed)
		return apperr.Internal(operation, "invalid response: "+echoed, err)
	}

	if !env.Success {
		info := env.ErrorInfo()
		typed := apperr.FromCode(operation, info.Code, info.Message)
		if typed.Kind == apperr.KindInternal {
			logger.Error("rpc downstream failure", "code", info.Code, "message", info.Message)
		} else {
			logger.Info("rpc downstream rejected request", "code", info.Code, "kind", typed.Kind.String())
		}
		return typed
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		echoed := redactBody(env.Data)
		logger.Error("rpc result does not match expected shape", "error", err, "data", echoed)
		return apperr.Internal(operation, "unexpected result shape: "+echoed, err)
	}
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}
