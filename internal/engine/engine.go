package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
	"github.com/gyaneshwarpardhi/sentinel/internal/notify"
	"github.com/gyaneshwarpardhi/sentinel/internal/sensor"
	"github.com/gyaneshwarpardhi/sentinel/internal/workerpool"
)

var (
	// ErrQueueFull is returned by Trigger when the event queue has no free slot.
	ErrQueueFull = errors.New("event queue full")
	// ErrFlowPanic marks a flow aborted by a panicking collaborator.
	ErrFlowPanic = errors.New("event flow panicked")
)

// Broadcaster pushes a message to every live observer.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg string) int
}

// IncidentStore persists non-ok verdicts.
type IncidentStore interface {
	InsertIncident(ctx context.Context, in event.Incident) error
}

// Notifier dispatches a critical alert to every channel.
type Notifier interface {
	NotifyCritical(ctx context.Context, message string) []notify.Outcome
}

// Recorder receives per-event metrics.
type Recorder interface {
	ObserveLatency(sensorType string, seconds float64)
	Increment(sensorType, status string)
	EventEnqueued()
	EventDropped()
}

// Conf holds the engine's concurrency settings.
type Conf struct {
	EventWorkers int
	QueueDepth   int
}

// Ack is returned to the intake caller once an event is queued.
type Ack struct {
	EventID string        `json:"event_id"`
	Verdict event.Verdict `json:"verdict"`
}

// FlowResult is the outcome of one orchestration flow.
type FlowResult struct {
	EventID       string           `json:"event_id"`
	Verdict       event.Verdict    `json:"verdict"`
	Delivered     int              `json:"delivered"`
	Persisted     bool             `json:"persisted"`
	PersistError  string           `json:"persist_error,omitempty"`
	Error         string           `json:"error,omitempty"`
	Notifications []notify.Outcome `json:"notifications,omitempty"`
	Duration      time.Duration    `json:"duration"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithOnComplete registers a callback invoked after every flow finishes.
func WithOnComplete(fn func(*FlowResult)) Option {
	return func(e *Engine) { e.onComplete = fn }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine classifies events at intake and runs each one through
// broadcast → persist → notify → metrics on a bounded worker pool.
type Engine struct {
	hub      Broadcaster
	store    IncidentStore
	notifier Notifier
	metrics  Recorder

	pool       *workerpool.Pool[*flow, *FlowResult]
	onComplete func(*FlowResult)
	now        func() time.Time
	log        *slog.Logger

	mu       sync.RWMutex
	snapshot map[event.SensorType]event.Verdict
}

type flow struct {
	ev      event.Event
	verdict event.Verdict
}

// New creates an Engine and starts its event workers.
func New(ctx context.Context, conf Conf, hub Broadcaster, store IncidentStore, notifier Notifier, rec Recorder, opts ...Option) *Engine {
	if conf.EventWorkers <= 0 {
		conf.EventWorkers = 8
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = 1000
	}
	e := &Engine{
		hub:      hub,
		store:    store,
		notifier: notifier,
		metrics:  rec,
		now:      time.Now,
		log:      slog.Default(),
		snapshot: make(map[event.SensorType]event.Verdict),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pool = workerpool.New[*flow, *FlowResult](ctx, conf.EventWorkers, conf.QueueDepth,
		func(ctx context.Context, f *flow) (*FlowResult, error) {
			res, err := e.safeProcess(ctx, f)
			if e.onComplete != nil {
				e.onComplete(res)
			}
			return res, err
		},
	)
	return e
}

// Trigger classifies the payload and queues its flow, returning without
// waiting for it. Unknown sensor types fail with sensor.ErrSensorNotFound
// before any side effect.
func (e *Engine) Trigger(sensorType string, payload map[string]interface{}) (Ack, error) {
	st, err := sensor.ParseType(sensorType)
	if err != nil {
		return Ack{}, err
	}
	ev := event.Event{
		ID:         uuid.New().String(),
		SensorType: st,
		Payload:    payload,
		ReceivedAt: e.now(),
	}
	verdict, err := sensor.Classify(st, payload, ev.ReceivedAt)
	if err != nil {
		return Ack{}, err
	}

	if _, err := e.pool.TrySubmit(&flow{ev: ev, verdict: verdict}); err != nil {
		e.metrics.EventDropped()
		if errors.Is(err, workerpool.ErrQueueFull) {
			return Ack{}, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pool.QueueCap())
		}
		return Ack{}, err
	}
	e.metrics.EventEnqueued()
	return Ack{EventID: ev.ID, Verdict: verdict}, nil
}

// Process runs one flow to completion. Stage failures are logged and never
// undo earlier stages.
func (e *Engine) Process(ctx context.Context, ev event.Event, v event.Verdict) *FlowResult {
	start := ev.ReceivedAt
	if start.IsZero() {
		start = e.now()
	}
	log := e.log.With("event_id", ev.ID, "sensor_type", v.SensorType, "status", v.Status)
	res := &FlowResult{EventID: ev.ID, Verdict: v}

	e.remember(v)

	// ── Broadcast ────────────────────────────────────────────────────────────
	msg, err := json.Marshal(v)
	if err != nil {
		log.Error("encode verdict", "err", err)
	} else {
		res.Delivered = e.hub.Broadcast(ctx, string(msg))
	}

	// ── Persist ──────────────────────────────────────────────────────────────
	if v.Status.Persistable() {
		err := e.store.InsertIncident(ctx, event.Incident{
			SensorType: v.SensorType,
			Status:     v.Status,
			Message:    v.Message,
			CreatedAt:  v.Timestamp,
		})
		if err != nil {
			res.PersistError = err.Error()
			log.Error("persist incident failed", "err", err)
		} else {
			res.Persisted = true
		}
	}

	// ── Notify ───────────────────────────────────────────────────────────────
	if v.Status == event.StatusCritical {
		res.Notifications = e.notifier.NotifyCritical(ctx, v.Message)
	}

	// ── Metrics ──────────────────────────────────────────────────────────────
	res.Duration = e.now().Sub(start)
	e.metrics.ObserveLatency(string(v.SensorType), res.Duration.Seconds())
	e.metrics.Increment(string(v.SensorType), string(v.Status))

	log.Info("event processed",
		"delivered", res.Delivered,
		"persisted", res.Persisted,
		"notifications", len(res.Notifications),
		"duration", res.Duration,
	)
	return res
}

// safeProcess keeps a panicking collaborator from taking down the worker.
func (e *Engine) safeProcess(ctx context.Context, f *flow) (res *FlowResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFlowPanic, r)
			e.log.Error("event flow aborted", "event_id", f.ev.ID, "sensor_type", f.verdict.SensorType, "err", err)
			e.metrics.Increment(string(f.verdict.SensorType), string(f.verdict.Status))
			res = &FlowResult{
				EventID:  f.ev.ID,
				Verdict:  f.verdict,
				Error:    err.Error(),
				Duration: e.now().Sub(f.ev.ReceivedAt),
			}
		}
	}()
	return e.Process(ctx, f.ev, f.verdict), nil
}

func (e *Engine) remember(v event.Verdict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.snapshot[v.SensorType]; ok && prev.Timestamp.After(v.Timestamp) {
		return
	}
	e.snapshot[v.SensorType] = v
}

// Snapshot returns the latest verdict seen for each sensor type.
func (e *Engine) Snapshot() map[event.SensorType]event.Verdict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[event.SensorType]event.Verdict, len(e.snapshot))
	for k, v := range e.snapshot {
		out[k] = v
	}
	return out
}

// InFlight returns the number of flows queued or running.
func (e *Engine) InFlight() int64 {
	return e.pool.InFlight()
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown stops intake and waits for queued flows to finish.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
