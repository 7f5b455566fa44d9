package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bortube/gateway/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestVideoPublished(t *testing.T) {
	fw := &fakeWriter{}
	p := NewPublisherWithWriter(fw)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	video := models.Video{ID: "v1", UserID: "u1", Title: "T", State: models.VideoStateVisible}
	if err := p.VideoPublished(context.Background(), video); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}

	msg := fw.msgs[0]
	if string(msg.Key) != "v1" {
		t.Fatalf("expected key v1 got %q", msg.Key)
	}
	var event VideoEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != TypeVideoPublished || event.VideoID != "v1" || event.State != models.VideoStateVisible {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.OccurredAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", event.OccurredAt)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TypeVideoPublished {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
}

func TestVideoPublishedWriteError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("leader not available")}
	p := NewPublisherWithWriter(fw)

	if err := p.VideoPublished(context.Background(), models.Video{ID: "v1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose(t *testing.T) {
	fw := &fakeWriter{}
	if err := NewPublisherWithWriter(fw).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fw.closed {
		t.Fatal("expected writer closed")
	}
}
