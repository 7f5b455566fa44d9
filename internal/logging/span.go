package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one outbound operation (typically an RPC call) and logs its
// outcome when it ends.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	now    func() time.Time
}

// StartSpan derives a child span from ctx. The returned context carries a
// logger annotated with the span id, the span name and the parent span id
// when one exists.
func StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)
	parentSpanID := SpanIDFromContext(ctx)
	spanID := uuid.NewString()

	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}

	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), now: time.Now}
}

// Logger returns the span-scoped logger.
func (s *Span) Logger() *slog.Logger {
	if s == nil {
		return slog.Default()
	}
	return s.logger
}

// End emits a completion entry. A non-nil err is logged at warn level.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := s.now().Sub(s.start)
	if err != nil {
		s.logger.Warn("span failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("span completed", slog.Duration("duration", elapsed))
}
