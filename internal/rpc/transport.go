package rpc

import (
	"context"
	"time"
)

// Request is one outbound RPC message.
type Request struct {
	Operation     string
	CorrelationID string
	ContentType   string
	Body          []byte
	// Expiration bounds how long the broker may hold the request undelivered.
	Expiration time.Duration
}

// Message is one inbound reply. Undeliverable marks a request the broker
// handed back because no consumer was bound for the operation.
type Message struct {
	CorrelationID string
	ContentType   string
	Body          []byte
	Undeliverable bool
}

// Transport is the request/reply primitive the client multiplexes calls over.
// Replies must be safe to read from a single goroutine for the lifetime of
// the transport; the channel is closed when the transport shuts down.
type Transport interface {
	Send(ctx context.Context, req Request) error
	Replies() <-chan Message
}
