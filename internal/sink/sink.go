package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by writers after Close.
var ErrClosed = errors.New("sink closed")

// Record is one event as delivered to storage.
type Record struct {
	Page          string       `json:"page"`
	MeasurementID string       `json:"measurement_id"`
	Name          string       `json:"event"`
	Params        event.Params `json:"params"`
	Time          time.Time    `json:"time"`
}

// Writer persists records.
type Writer interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Log writes every record to a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a writer that logs records at info level.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "sink").Str("sink", "log").Logger()}
}

// Write logs rec.
func (l *Log) Write(_ context.Context, rec Record) error {
	l.logger.Info().
		Str("page", rec.Page).
		Str("measurement_id", rec.MeasurementID).
		Str("event", rec.Name).
		Interface("params", rec.Params).
		Time("event_time", rec.Time).
		Msg("Event")
	return nil
}

// Close is a no-op.
func (l *Log) Close() error { return nil }

// Async decouples page handlers from a slow writer. Records are queued on a
// bounded channel and written by a single worker; when the queue is full
// the record is dropped and counted.
type Async struct {
	next   Writer
	name   string
	queue  chan Record
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the worker. name labels the drop counter.
func NewAsync(next Writer, name string, size int, logger zerolog.Logger) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{
		next:   next,
		name:   name,
		queue:  make(chan Record, size),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "sink").Str("sink", name).Logger(),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		if err := a.next.Write(context.Background(), rec); err != nil {
			metrics.SinkErrors.WithLabelValues(a.name).Inc()
			a.logger.Warn().Err(err).Str("event", rec.Name).Msg("Failed to write event")
		}
	}
}

// Write enqueues rec without blocking.
func (a *Async) Write(_ context.Context, rec Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		metrics.SinkErrors.WithLabelValues(a.name).Inc()
		return errors.New("sink queue full")
	}
}

// Close drains the queue and closes the underlying writer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

// PageSink adapts a Writer to event.Sink for one page.
type PageSink struct {
	writer        Writer
	page          string
	measurementID string
	now           func() time.Time
	logger        zerolog.Logger
}

// ForPage returns the sink trackers of page emit into.
func ForPage(w Writer, page, measurementID string, now func() time.Time, logger zerolog.Logger) *PageSink {
	if now == nil {
		now = time.Now
	}
	return &PageSink{
		writer:        w,
		page:          page,
		measurementID: measurementID,
		now:           now,
		logger:        logger,
	}
}

// Emit writes the event. Failures are logged, never returned.
func (s *PageSink) Emit(name string, params event.Params) {
	rec := Record{
		Page:          s.page,
		MeasurementID: s.measurementID,
		Name:          name,
		Params:        params.Clone(),
		Time:          s.now(),
	}
	if err := s.writer.Write(context.Background(), rec); err != nil {
		s.logger.Warn().Err(err).Str("event", name).Msg("Dropped event")
		return
	}
	metrics.EventsEmitted.WithLabelValues(name).Inc()
}
