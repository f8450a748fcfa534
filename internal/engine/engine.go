package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/jagtrack/internal/adapters"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/model"
	"github.com/roach88/jagtrack/internal/registry"
	"github.com/roach88/jagtrack/internal/store"
)

// DefaultMaxPending is the default bound on each observer's orphan buffer.
const DefaultMaxPending = 1000

// Engine is the single-writer event loop in front of the per-observer
// models.
//
// CRITICAL: All model mutations happen in the goroutine that calls Run or
// Process. External producers use Enqueue.
//
// Thread-safety model:
//   - Enqueue(), Stop(): safe from any goroutine
//   - Run(), Process(): must be called from exactly one goroutine
type Engine struct {
	registry  *registry.Registry
	adapters  adapters.Table
	store     *store.Store
	publisher model.Publisher
	clock     *Clock
	queue     *eventQueue
	ids       IDGenerator

	maxPending int
	observers  map[string]*observer
	order      []string // observers in first-seen order

	// set only while an event is being processed
	ctx   context.Context
	cause int64
}

// observer is one observer's model and orphan buffer.
type observer struct {
	model   *model.Model
	pending *PendingBuffer
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxPending bounds each observer's orphan buffer.
//
// Default: 1000 events (DefaultMaxPending).
func WithMaxPending(n int) EngineOption {
	return func(e *Engine) {
		e.maxPending = n
	}
}

// WithIDGenerator sets the generator for merged consensus trees.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithStore records every observation and publication in s.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithPublisher forwards every publication to p after it is recorded.
func WithPublisher(p model.Publisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithClock sets the logical clock. Used to continue an existing log:
//
//	last, _ := s.LastSeq(ctx)
//	engine.New(reg, table, engine.WithStore(s), engine.WithClock(engine.NewClockAt(last)))
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine over a template registry and an adapter table.
// Per-observer models are created on first contact.
func New(reg *registry.Registry, table adapters.Table, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:   reg,
		adapters:   table,
		publisher:  model.PublisherFunc(func(ir.Outbound) error { return nil }),
		clock:      NewClock(),
		queue:      newEventQueue(),
		ids:        UUIDv7Generator{},
		maxPending: DefaultMaxPending,
		observers:  make(map[string]*observer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.Inbound) bool {
	return e.queue.Enqueue(ev)
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drained.
//
// On event processing failure, the error is logged with the event and
// processing continues. Retrying would make replay non-deterministic.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "max_pending", e.maxPending)

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			if err := e.Process(ctx, ev); err != nil {
				logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue, so this case
			// fires immediately after Stop.
			if e.queue.Drained() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue. Run returns once the queue is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Process handles one event synchronously. It is what Run calls for each
// dequeued event and what replay and the harness call directly.
//
// An event whose target instance is unknown is buffered and nil is
// returned, unless the buffer overflows.
func (e *Engine) Process(ctx context.Context, ev ir.Inbound) error {
	if err := checkEvent(ev); err != nil {
		return err
	}

	seq := e.clock.Next()
	if e.store != nil {
		if err := e.store.WriteObservation(ctx, store.Observation{Seq: seq, Event: ev}); err != nil {
			return fmt.Errorf("write observation %d: %w", seq, err)
		}
	}

	e.ctx, e.cause = ctx, seq
	defer func() { e.ctx, e.cause = nil, 0 }()

	slog.Debug("processing event",
		"seq", seq,
		"category", ev.Category,
		"observer", ev.Observer,
		"elapsed_ms", ev.ElapsedMS,
	)

	switch ev.Category {
	case ir.CategoryDiscovered:
		return e.discover(ev)
	case ir.CategorySummary:
		return e.summarize(ev)
	default:
		return e.observe(ev)
	}
}

// Observers returns the observers seen so far, in first-seen order.
func (e *Engine) Observers() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Model returns observer's model, or nil if the observer was never seen.
func (e *Engine) Model(name string) *model.Model {
	if o, ok := e.observers[name]; ok {
		return o.model
	}
	return nil
}

// Pending returns the number of buffered orphan events for observer.
func (e *Engine) Pending(name string) int {
	if o, ok := e.observers[name]; ok {
		return o.pending.Len()
	}
	return 0
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the number of events waiting for the Run loop.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// MaxPending returns the orphan buffer bound.
func (e *Engine) MaxPending() int {
	return e.maxPending
}

func (e *Engine) observer(name string) *observer {
	if o, ok := e.observers[name]; ok {
		return o
	}
	o := &observer{
		model:   model.New(name, e.registry, e.adapters, model.WithPublisher(model.PublisherFunc(e.publish))),
		pending: NewPendingBuffer(e.maxPending),
	}
	e.observers[name] = o
	e.order = append(e.order, name)
	slog.Debug("observer registered", "observer", name)
	return o
}

// discover adds the described activity to the observer's forest. An empty
// description id asks for a fresh instance of the template; otherwise the
// described tree is rebuilt with its ids. Activities the observer already
// holds are ignored.
func (e *Engine) discover(ev ir.Inbound) error {
	o := e.observer(ev.Observer)
	desc := *ev.Discovery

	if desc.ID != "" && o.model.GetByID(desc.ID) != nil {
		slog.Debug("instance already known", "observer", ev.Observer, "id", desc.ID)
		return nil
	}
	if existing := o.model.Get(desc.URN, desc.Inputs, desc.Outputs); existing != nil {
		slog.Debug("activity already tracked", "observer", ev.Observer, "urn", desc.URN, "id", existing.ID())
		return nil
	}

	var err error
	if desc.ID == "" {
		_, err = o.model.Create(desc.URN, desc.Inputs, desc.Outputs, ev.ElapsedMS)
	} else {
		_, err = o.model.CreateFromInstance(desc)
	}
	if err != nil {
		return fmt.Errorf("observer %s: discover %s: %w", ev.Observer, desc.URN, err)
	}

	if o.pending.Len() > 0 {
		n := o.pending.Retry(func(p ir.Inbound) bool {
			if _, err := o.model.Resolve(p); err != nil {
				return false
			}
			if err := o.model.Dispatch(p); err != nil {
				logEventError(p, err)
			}
			return true
		})
		slog.Debug("orphan events retried", "observer", ev.Observer, "resolved", n, "pending", o.pending.Len())
	}
	return nil
}

// observe dispatches an activity or completion report, or buffers it when
// no instance it targets is known yet.
func (e *Engine) observe(ev ir.Inbound) error {
	o := e.observer(ev.Observer)

	if _, err := o.model.Resolve(ev); err != nil {
		if !errors.Is(err, model.ErrInstanceNotFound) {
			return err
		}
		dropped, evicted := o.pending.Push(ev)
		slog.Debug("orphan event buffered", "observer", ev.Observer, "category", ev.Category, "pending", o.pending.Len())
		if evicted {
			slog.Warn("orphan buffer full, dropping oldest event",
				"observer", ev.Observer,
				"limit", o.pending.Limit(),
				"dropped_category", dropped.Category,
				"dropped_elapsed_ms", dropped.ElapsedMS,
			)
			return NewPendingLimitError(ev.Observer, o.pending.Limit(), dropped)
		}
		return nil
	}

	if err := o.model.Dispatch(ev); err != nil {
		return fmt.Errorf("observer %s: dispatch %s: %w", ev.Observer, ev.Category, err)
	}
	return nil
}

// publish stamps, records and forwards one outbound payload.
func (e *Engine) publish(out ir.Outbound) error {
	seq := e.clock.Next()
	if e.store != nil && e.ctx != nil {
		pub := store.Publication{Seq: seq, ObservationSeq: e.cause, Outbound: out}
		if err := e.store.WritePublication(e.ctx, pub); err != nil {
			return fmt.Errorf("record publication %d: %w", seq, err)
		}
	}
	return e.publisher.Publish(out)
}

// logEventError logs a failed event with enough context to find it in
// the observation log.
func logEventError(ev ir.Inbound, err error) {
	slog.Error("event processing failed",
		"error", err,
		"category", ev.Category,
		"observer", ev.Observer,
		"elapsed_ms", ev.ElapsedMS,
		"instance_id", ev.InstanceID(),
	)
}

// Flush drops every orphan event that is still buffered and reports each
// one as an INSTANCE_NOT_FOUND error. Called at the end of a finite run.
func (e *Engine) Flush() error {
	var errs []error
	for _, name := range e.order {
		o := e.observers[name]
		for _, ev := range o.pending.Drain() {
			_, cause := o.model.Resolve(ev)
			errs = append(errs, NewInstanceNotFoundError(ev, cause))
		}
	}
	if len(errs) > 0 {
		slog.Warn("unresolved orphan events dropped", "count", len(errs))
	}
	return errors.Join(errs...)
}
