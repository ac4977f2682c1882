package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/invoice-reconciler/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Publisher is the side of the dispatcher the workflow engine and workers see
type Publisher interface {
	// Publish queues the event for its handlers without waiting for them.
	// Events of one thread are delivered in publish order.
	Publish(ctx context.Context, evt *event.Event)
}

// Dispatcher routes thread events to registered handlers
type Dispatcher interface {
	Publisher

	// Subscribe registers a handler for an event type under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler for an event type under name
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a handler that sees every event, after the typed handlers
	SubscribeAll(name string, handler Handler)

	// Dispatch runs the handlers inline and joins their errors
	Dispatch(ctx context.Context, evt *event.Event) error

	// HandlerNames lists the handlers an event of this type reaches, in call order
	HandlerNames(eventType event.Type) []string

	// Close stops accepting events and drains queued ones
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type queued struct {
	ctx context.Context
	evt *event.Event
}

// lane holds the undelivered events of one thread; a single goroutine drains it
type lane struct {
	pending []queued
}

type eventDispatcher struct {
	mu     sync.RWMutex
	typed  map[event.Type][]subscription
	global []subscription
	seq    int
	logger Logger

	lanesMu sync.Mutex
	lanes   map[string]*lane

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		typed: make(map[event.Type][]subscription),
		lanes: make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.addTyped(eventType, fmt.Sprintf("%s#%d", eventType, d.seq), handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addTyped(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global = append(d.global, subscription{name: name, handler: handler})
	d.info("Handler registered", "event_type", "*", "handler_name", name)
}

// addTyped requires d.mu held
func (d *eventDispatcher) addTyped(eventType event.Type, name string, handler Handler) {
	d.typed[eventType] = append(d.typed[eventType], subscription{name: name, handler: handler})
	d.info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) HandlerNames(eventType event.Type) []string {
	subs := d.route(eventType)
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.name
	}
	return names
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.deliver(ctx, evt)
}

func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) {
	// Handlers outlive the request that produced the event
	item := queued{ctx: context.WithoutCancel(ctx), evt: evt}

	// closed is read under lanesMu so wg.Add never races Close's Wait
	d.lanesMu.Lock()
	if d.closed.Load() {
		d.lanesMu.Unlock()
		d.error("Dropping event, dispatcher is closed",
			"event_type", evt.Type,
			"thread_id", evt.ThreadID,
		)
		return
	}
	l, draining := d.lanes[evt.ThreadID]
	if !draining {
		l = &lane{}
		d.lanes[evt.ThreadID] = l
		d.wg.Add(1)
	}
	l.pending = append(l.pending, item)
	d.lanesMu.Unlock()

	if !draining {
		go d.drain(evt.ThreadID, l)
	}
}

func (d *eventDispatcher) drain(threadID string, l *lane) {
	defer d.wg.Done()
	for {
		d.lanesMu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, threadID)
			d.lanesMu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		d.lanesMu.Unlock()

		// errors are already logged per handler
		_ = d.deliver(next.ctx, next.evt)
	}
}

func (d *eventDispatcher) Close() error {
	d.lanesMu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.lanesMu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	d.info("Closing dispatcher, draining queued events")
	d.wg.Wait()
	d.info("Dispatcher closed")
	return nil
}

// route returns typed handlers followed by the catch-all ones
func (d *eventDispatcher) route(eventType event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := make([]subscription, 0, len(d.typed[eventType])+len(d.global))
	subs = append(subs, d.typed[eventType]...)
	return append(subs, d.global...)
}

func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event) error {
	var errs []error
	for _, s := range d.route(evt.Type) {
		if err := d.safeExecute(ctx, evt, s); err != nil {
			d.error("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"thread_id", evt.ThreadID,
				"handler_name", s.name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, s subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) error(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
