package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/rpc"
)

// Handler serves one operation. The returned value becomes the data of a
// success envelope; an error becomes a failure envelope carrying the wire
// code of its apperr kind.
type Handler func(ctx context.Context, body []byte) (any, error)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPrefetch limits unacknowledged deliveries per consumer.
func WithPrefetch(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.prefetch = n
		}
	}
}

// WithHandlerTimeout bounds each handler invocation.
func WithHandlerTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Server consumes one queue per registered operation and answers every
// request on its reply-to address with the request's correlation id.
type Server struct {
	conn     *Connection
	logger   *slog.Logger
	prefetch int
	timeout  time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewServer retains conn until Close is called.
func NewServer(conn *Connection, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:   logger.With("component", "rpc_server"),
		prefetch: 8,
		timeout:  30 * time.Second,
		handlers: make(map[string]Handler),
	}
	if conn != nil {
		s.conn = conn.Retain()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers h for operation. It must be called before Serve.
func (s *Server) Handle(operation string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[operation] = h
}

// Operations lists the registered operations in name order.
func (s *Server) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ops := make([]string, 0, len(s.handlers))
	for op := range s.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Serve declares and consumes the operation queues until ctx is canceled or
// the broker closes the channel.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return ErrConnectionClosed
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	ops := s.Operations()
	if len(ops) == 0 {
		return errors.New("no operations registered")
	}

	var wg sync.WaitGroup
	for _, op := range ops {
		if _, err := ch.QueueDeclare(op, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", op, err)
		}
		deliveries, err := ch.Consume(op, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", op, err)
		}

		wg.Add(1)
		go func(op string, deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range deliveries {
				s.handleDelivery(ctx, ch, op, d)
			}
		}(op, deliveries)
	}

	s.logger.Info("rpc server consuming", "operations", ops)

	closes := ch.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-ctx.Done():
		_ = ch.Close()
		wg.Wait()
		return nil
	case amqpErr, ok := <-closes:
		wg.Wait()
		if ok && amqpErr != nil {
			return fmt.Errorf("rpc server channel closed: %w", amqpErr)
		}
		return errors.New("rpc server channel closed")
	}
}

// Close releases the broker connection.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) handleDelivery(ctx context.Context, ch *amqp.Channel, operation string, d amqp.Delivery) {
	ctx = logging.WithCorrelationID(ctx, d.CorrelationId)
	logger := s.logger.With("operation", operation, "correlation_id", d.CorrelationId)
	ctx = logging.WithLogger(ctx, logger)

	reply := s.Respond(ctx, operation, d.Body)

	if d.ReplyTo != "" {
		err := ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			ContentType:   rpc.ContentTypeJSON,
			CorrelationId: d.CorrelationId,
			Timestamp:     time.Now().UTC(),
			Body:          reply,
		})
		if err != nil {
			logger.Error("publish rpc reply", "error", err)
		}
	} else {
		logger.Warn("rpc request without reply address")
	}

	if err := d.Ack(false); err != nil {
		logger.Error("ack rpc request", "error", err)
	}
}

// Respond runs the handler for operation and renders its outcome as an
// envelope. Unknown operations, handler panics and unencodable results all
// produce an internal-error envelope.
func (s *Server) Respond(ctx context.Context, operation string, body []byte) []byte {
	s.mu.RLock()
	h, ok := s.handlers[operation]
	s.mu.RUnlock()
	if !ok {
		return failure(http.StatusInternalServerError, "unknown operation "+operation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := logging.StartSpan(ctx, "rpc.serve "+operation)
	result, err := invoke(ctx, h, body)
	span.End(err)

	if err != nil {
		return failure(apperr.Code(err), apperr.Message(err))
	}

	out, err := rpc.EncodeSuccess(result)
	if err != nil {
		span.Logger().Error("encode rpc result", "error", err)
		return failure(http.StatusInternalServerError, "internal server error")
	}
	return out
}

func invoke(ctx context.Context, h Handler, body []byte) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal("", "handler panic", fmt.Errorf("%v", r))
		}
	}()
	return h(ctx, body)
}

func failure(code int, message string) []byte {
	out, err := rpc.EncodeFailure(code, message)
	if err != nil {
		return []byte(`{"success":false,"data":{"code":500,"message":"internal server error"}}`)
	}
	return out
}
