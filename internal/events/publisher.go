package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bortube/gateway/internal/logging"
	"github.com/bortube/gateway/internal/models"
)

// TypeVideoPublished is emitted when a video becomes visible.
const TypeVideoPublished = "video-published"

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// VideoEvent is the payload of a lifecycle event.
type VideoEvent struct {
	Type       string            `json:"type"`
	VideoID    models.ObjectID   `json:"videoId"`
	UserID     string            `json:"userId"`
	Title      string            `json:"title"`
	State      models.VideoState `json:"videoState"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Publisher writes video lifecycle events to a Kafka topic, keyed by video id
// so events for one video stay ordered within a partition.
type Publisher struct {
	writer  Writer
	timeout time.Duration
	now     func() time.Time
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w)
}

// NewPublisherWithWriter allows injecting a test writer.
func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w, timeout: 5 * time.Second, now: time.Now}
}

// VideoPublished announces that video became visible.
func (p *Publisher) VideoPublished(ctx context.Context, video models.Video) error {
	return p.publish(ctx, VideoEvent{
		Type:       TypeVideoPublished,
		VideoID:    video.ID,
		UserID:     video.UserID,
		Title:      video.Title,
		State:      video.State,
		OccurredAt: p.now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, event VideoEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.VideoID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}

	logging.FromContext(ctx).Debug("event published", slog.String("type", event.Type), slog.String("video_id", event.VideoID.String()))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
