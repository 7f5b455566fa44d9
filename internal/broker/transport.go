package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bortube/gateway/internal/rpc"
)

// DirectReplyTo is the broker pseudo-queue used for RPC replies.
const DirectReplyTo = "amq.rabbitmq.reply-to"

var errTransportClosed = errors.New("rpc transport closed")

// Transport implements rpc.Transport over AMQP. Requests are published to the
// default exchange with the operation name as routing key; replies come back
// on the direct reply-to pseudo-queue of the same channel. Publishes are
// mandatory and confirmed, so a request with no bound consumer is handed back
// and surfaced as an undeliverable reply.
type Transport struct {
	conn    *Connection
	logger  *slog.Logger
	replies chan rpc.Message

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTransport retains conn for the lifetime of the transport. The reply
// channel is opened lazily on the first Send.
func NewTransport(conn *Connection, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		conn:    conn.Retain(),
		logger:  logger.With("component", "rpc_transport"),
		replies: make(chan rpc.Message, 64),
		done:    make(chan struct{}),
	}
}

// Replies implements rpc.Transport.
func (t *Transport) Replies() <-chan rpc.Message {
	return t.replies
}

// Send implements rpc.Transport. It returns once the broker confirmed the
// publish.
func (t *Transport) Send(ctx context.Context, req rpc.Request) error {
	ch, err := t.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", req.Operation, true, false, amqp.Publishing{
		ContentType:   req.ContentType,
		CorrelationId: req.CorrelationID,
		ReplyTo:       DirectReplyTo,
		Type:          req.Operation,
		Timestamp:     time.Now().UTC(),
		Expiration:    expiration(req.Expiration),
		Body:          req.Body,
	})
	if err != nil {
		t.drop(ch)
		return fmt.Errorf("publish %s: %w", req.Operation, err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected %s request", req.Operation)
	}
	return nil
}

// Close stops the reply pump, closes the reply channel and releases the
// connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ch := t.ch
	t.ch = nil
	t.mu.Unlock()

	close(t.done)
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			t.logger.Warn("close rpc channel", "error", err)
		}
	}
	t.wg.Wait()
	close(t.replies)

	return t.conn.Close()
}

func (t *Transport) channel() (*amqp.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errTransportClosed
	}
	if t.ch != nil && !t.ch.IsClosed() {
		return t.ch, nil
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	deliveries, err := ch.Consume(DirectReplyTo, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume replies: %w", err)
	}

	returns := ch.NotifyReturn(make(chan amqp.Return, 16))
	closes := ch.NotifyClose(make(chan *amqp.Error, 1))

	t.ch = ch
	t.wg.Add(1)
	go t.pump(ch, deliveries, returns, closes)

	t.logger.Debug("rpc reply channel opened")
	return ch, nil
}

func (t *Transport) drop(ch *amqp.Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == ch {
		t.ch = nil
	}
}

func (t *Transport) pump(ch *amqp.Channel, deliveries <-chan amqp.Delivery, returns <-chan amqp.Return, closes <-chan *amqp.Error) {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				t.drop(ch)
				return
			}
			t.forward(replyFromDelivery(d))
		case r, ok := <-returns:
			if !ok {
				returns = nil
				continue
			}
			t.logger.Warn("rpc request returned", "operation", r.RoutingKey, "reply_code", r.ReplyCode, "reply_text", r.ReplyText)
			t.forward(replyFromReturn(r))
		case amqpErr, ok := <-closes:
			if ok && amqpErr != nil {
				t.logger.Error("rpc channel closed by broker", "code", amqpErr.Code, "reason", amqpErr.Reason)
			}
			t.drop(ch)
			return
		}
	}
}

func (t *Transport) forward(msg rpc.Message) {
	select {
	case t.replies <- msg:
	case <-t.done:
	}
}

func replyFromDelivery(d amqp.Delivery) rpc.Message {
	return rpc.Message{
		CorrelationID: d.CorrelationId,
		ContentType:   d.ContentType,
		Body:          d.Body,
	}
}

func replyFromReturn(r amqp.Return) rpc.Message {
	return rpc.Message{
		CorrelationID: r.CorrelationId,
		Undeliverable: true,
	}
}

// expiration renders a per-message TTL in the millisecond string form the
// broker expects. Non-positive durations leave the message without a TTL.
func expiration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
