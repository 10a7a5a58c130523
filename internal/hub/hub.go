package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHubClosed is returned by Register after Close.
var ErrHubClosed = errors.New("hub closed")

// Observer is one live viewer of the verdict stream.
type Observer interface {
	// Handshake completes the connection; the observer receives nothing before it succeeds.
	Handshake(ctx context.Context) error
	// Send delivers one text message.
	Send(ctx context.Context, msg string) error
	Close() error
}

// Handle identifies a registered observer.
type Handle string

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for membership changes.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithSendTimeout bounds each delivery to one observer.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithMembershipCallback is invoked with the observer count after every change.
func WithMembershipCallback(fn func(n int)) Option {
	return func(h *Hub) { h.onChange = fn }
}

// Hub keeps the set of connected observers and fans messages out to them.
type Hub struct {
	mu          sync.Mutex
	observers   map[Handle]Observer
	handles     map[Observer]Handle
	closed      bool
	sendTimeout time.Duration
	log         *slog.Logger
	onChange    func(n int)
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		observers:   make(map[Handle]Observer),
		handles:     make(map[Observer]Handle),
		sendTimeout: 5 * time.Second,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register handshakes o and adds it to the active set. Registering an
// observer twice returns its existing handle.
func (h *Hub) Register(ctx context.Context, o Observer) (Handle, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	if existing, ok := h.handles[o]; ok {
		h.mu.Unlock()
		return existing, nil
	}
	h.mu.Unlock()

	if err := o.Handshake(ctx); err != nil {
		return "", err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = o.Close()
		return "", ErrHubClosed
	}
	if existing, ok := h.handles[o]; ok {
		h.mu.Unlock()
		return existing, nil
	}
	handle := Handle(uuid.New().String())
	h.observers[handle] = o
	h.handles[o] = handle
	n := len(h.observers)
	h.mu.Unlock()

	h.log.Info("observer connected", "handle", handle, "observers", n)
	h.notify(n)
	return handle, nil
}

// Unregister removes and closes the observer. Unknown handles are ignored.
func (h *Hub) Unregister(handle Handle) {
	h.mu.Lock()
	o, ok := h.observers[handle]
	if ok {
		delete(h.observers, handle)
		delete(h.handles, o)
	}
	n := len(h.observers)
	h.mu.Unlock()
	if !ok {
		return
	}

	if err := o.Close(); err != nil {
		h.log.Debug("observer close", "handle", handle, "err", err)
	}
	h.log.Info("observer disconnected", "handle", handle, "observers", n)
	h.notify(n)
}

// Broadcast delivers msg to every registered observer and returns how many
// deliveries succeeded. Observers whose delivery fails are unregistered.
func (h *Hub) Broadcast(ctx context.Context, msg string) int {
	h.mu.Lock()
	targets := make(map[Handle]Observer, len(h.observers))
	for handle, o := range h.observers {
		targets[handle] = o
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return 0
	}

	type delivery struct {
		handle Handle
		err    error
	}
	results := make(chan delivery, len(targets))
	for handle, o := range targets {
		go func(handle Handle, o Observer) {
			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()
			results <- delivery{handle: handle, err: o.Send(sendCtx, msg)}
		}(handle, o)
	}

	delivered := 0
	for range targets {
		d := <-results
		if d.err != nil {
			h.log.Warn("broadcast delivery failed, dropping observer", "handle", d.handle, "err", d.err)
			h.Unregister(d.handle)
			continue
		}
		delivered++
	}
	return delivered
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects every observer. Later Register calls fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	observers := h.observers
	h.observers = make(map[Handle]Observer)
	h.handles = make(map[Observer]Handle)
	h.mu.Unlock()

	var errs []error
	for _, o := range observers {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.notify(0)
	return errors.Join(errs...)
}

func (h *Hub) notify(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}
