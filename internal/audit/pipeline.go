package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

const (
	tracerName    = "github.com/vyrodovalexey/avauthz/internal/audit"
	redactedValue = "[REDACTED]"
)

// Drop reasons reported in metrics.
const (
	dropBelowSeverity = "below_min_severity"
	dropOverflow      = "buffer_overflow"
	dropClosed        = "closed"
)

// ErrClosed is returned by Close when the pipeline is already closed.
var ErrClosed = errors.New("audit pipeline closed")

// Pipeline buffers events and writes them to a Sink in batches.
type Pipeline struct {
	cfg     Config
	sink    Sink
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	buffer []Event

	// flushMu makes flushes single-writer.
	flushMu sync.Mutex

	signal    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	// retrying is set after a failed flush. Batch-size signals are held back
	// until a flush succeeds; the ticker drives the retries.
	retrying atomic.Bool
}

// PipelineOption is a functional option for the pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger for the pipeline.
func WithLogger(logger observability.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics for the pipeline.
func WithMetrics(metrics *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a pipeline writing to sink and starts its background
// flush loop. Zero config values take their defaults.
func NewPipeline(sink Sink, cfg Config, opts ...PipelineOption) (*Pipeline, error) {
	if sink == nil {
		return nil, errors.New("audit sink is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		sink:   sink,
		logger: observability.NopLogger(),
		now:    time.Now,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics("avauthz")
	}

	p.wg.Add(1)
	go p.run()

	return p, nil
}

// Log appends an event to the buffer. It never blocks on the sink.
func (p *Pipeline) Log(ctx context.Context, event Event) {
	p.LogBatch(ctx, []Event{event})
}

// LogBatch appends events to the buffer in order.
func (p *Pipeline) LogBatch(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if p.closed.Load() {
		p.metrics.RecordDropped(dropClosed, len(events))
		return
	}

	accepted := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Severity == 0 {
			e.Severity = SeverityLow
		}
		if e.Severity < p.cfg.MinSeverity {
			p.metrics.RecordDropped(dropBelowSeverity, 1)
			continue
		}
		accepted = append(accepted, p.prepare(ctx, e))
	}
	if len(accepted) == 0 {
		return
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, accepted...)
	overflow := p.trimLocked()
	n := len(p.buffer)
	p.mu.Unlock()

	for _, e := range accepted {
		p.metrics.RecordEvent(e.Type, e.Severity)
	}
	if overflow > 0 {
		p.metrics.RecordDropped(dropOverflow, overflow)
	}
	p.metrics.SetBufferSize(n)

	if n >= p.cfg.BatchSize && !p.retrying.Load() {
		select {
		case p.signal <- struct{}{}:
		default:
		}
	}
}

// prepare assigns id, timestamp and trace id and applies redaction. The
// caller's context map is never modified.
func (p *Pipeline) prepare(ctx context.Context, e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now().UTC()
	}
	if e.ID == "" {
		e.ID = newEventID(e.Timestamp)
	}
	if e.TraceID == "" && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			e.TraceID = sc.TraceID().String()
		} else {
			e.TraceID = observability.TraceIDFromContext(ctx)
		}
	}

	if len(e.Context) > 0 {
		redacted := make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			if p.cfg.shouldRedact(k) {
				v = redactedValue
			}
			redacted[k] = v
		}
		e.Context = redacted
	}
	return e
}

// trimLocked drops the oldest events beyond MaxBufferSize.
func (p *Pipeline) trimLocked() int {
	limit := p.cfg.MaxBufferSize
	if limit <= 0 || len(p.buffer) <= limit {
		return 0
	}
	overflow := len(p.buffer) - limit
	p.buffer = append([]Event(nil), p.buffer[overflow:]...)
	return overflow
}

// FlushNow writes the buffered events to the sink. On failure the batch is
// put back at the front of the buffer and the error is returned.
func (p *Pipeline) FlushNow(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	return p.flushLocked(ctx)
}

func (p *Pipeline) flushLocked(ctx context.Context) error {
	p.mu.Lock()
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "audit.Flush",
		trace.WithAttributes(attribute.Int("audit.batch_size", len(batch))))
	defer span.End()

	kept, rows := p.encode(batch)
	if len(rows) == 0 {
		p.retrying.Store(false)
		p.metrics.SetBufferSize(p.Len())
		return nil
	}

	start := time.Now()
	err := p.sink.Insert(ctx, rows)
	duration := time.Since(start)

	if err != nil {
		p.retrying.Store(true)
		p.requeue(kept)
		p.metrics.RecordFlush("error", duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("audit flush failed, batch re-queued",
			observability.Int("batch_size", len(kept)),
			observability.Error(err),
		)
		return err
	}

	p.retrying.Store(false)
	p.metrics.RecordFlush("success", duration)
	p.metrics.SetBufferSize(p.Len())
	p.logger.Debug("audit batch flushed",
		observability.Int("batch_size", len(batch)),
		observability.Duration("duration", duration),
	)
	return nil
}

// encode converts batch to rows. Events that cannot be encoded are dropped
// for good; kept holds the rest in order.
func (p *Pipeline) encode(batch []Event) (kept []Event, rows []Row) {
	kept = make([]Event, 0, len(batch))
	rows = make([]Row, 0, len(batch))
	for _, e := range batch {
		r, err := RowFromEvent(e)
		if err != nil {
			p.logger.Error("dropping unencodable audit event",
				observability.String("id", e.ID),
				observability.String("type", string(e.Type)),
				observability.Error(err),
			)
			p.metrics.RecordDropped("unencodable", 1)
			continue
		}
		kept = append(kept, e)
		rows = append(rows, r)
	}
	return kept, rows
}

// requeue puts batch in front of anything logged during the failed write.
func (p *Pipeline) requeue(batch []Event) {
	p.mu.Lock()
	p.buffer = append(batch, p.buffer...)
	overflow := p.trimLocked()
	n := len(p.buffer)
	p.mu.Unlock()

	if overflow > 0 {
		p.metrics.RecordDropped(dropOverflow, overflow)
	}
	p.metrics.SetBufferSize(n)
}

// Query reads events from the durable sink. It returns the page of events
// and the total number of matches.
func (p *Pipeline) Query(ctx context.Context, f Filter) ([]Event, int, error) {
	f = f.Normalize()

	rows, err := p.sink.Query(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := p.sink.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	events := make([]Event, len(rows))
	for i, r := range rows {
		events[i] = r.Event()
	}
	return events, total, nil
}

// Len returns the number of buffered events.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close stops the background loop and makes a final flush attempt.
func (p *Pipeline) Close(ctx context.Context) error {
	err := ErrClosed
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
		err = p.FlushNow(ctx)
		if err != nil {
			p.logger.Warn("audit events lost at shutdown",
				observability.Int("count", p.Len()),
				observability.Error(err),
			)
		}
	})
	return err
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.backgroundFlush()
		case <-p.signal:
			p.backgroundFlush()
		}
	}
}

func (p *Pipeline) backgroundFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FlushTimeout)
	defer cancel()
	_ = p.FlushNow(ctx)
}
