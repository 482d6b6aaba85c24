package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor extracts a slog attribute from context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

type jobCtxKey struct{}

type jobScope struct {
	queue string
	id    string
}

// WithJob returns a context carrying the queue name and job ID. Records
// logged with it through a handler built by New gain "queue" and "job_id".
func WithJob(ctx context.Context, queue, jobID string) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, jobScope{queue: queue, id: jobID})
}

// JobFromContext returns the values stored by WithJob.
func JobFromContext(ctx context.Context) (queue, jobID string, ok bool) {
	s, ok := ctx.Value(jobCtxKey{}).(jobScope)
	return s.queue, s.id, ok
}

// LogHandlerDecorator wraps a slog.Handler, adding job scope and extractor
// attributes at Handle time.
type LogHandlerDecorator struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewLogHandlerDecorator wraps next. Nil extractors are skipped.
func NewLogHandlerDecorator(next slog.Handler, extractors ...ContextExtractor) slog.Handler {
	clean := make([]ContextExtractor, 0, len(extractors))
	for _, ex := range extractors {
		if ex != nil {
			clean = append(clean, ex)
		}
	}
	return &LogHandlerDecorator{next: next, extractors: clean}
}

func (h *LogHandlerDecorator) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *LogHandlerDecorator) Handle(ctx context.Context, rec slog.Record) error {
	if queue, id, ok := JobFromContext(ctx); ok {
		rec.AddAttrs(QueueName(queue), JobID(id))
	}
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *LogHandlerDecorator) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandlerDecorator{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *LogHandlerDecorator) WithGroup(name string) slog.Handler {
	return &LogHandlerDecorator{next: h.next.WithGroup(name), extractors: h.extractors}
}
