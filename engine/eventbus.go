package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"coderhack/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

const (
	defaultQueueSize = 2048
	defaultWorkers   = 4
)

type subscription struct {
	id  int64
	all bool
	typ core.EventType
	fn  EventHandler
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
type EventBus struct {
	mode    DispatchMode
	logger  *slog.Logger
	mu      sync.RWMutex
	subs    map[int64]subscription
	nextID  int64
	queue   chan queued
	workers int
	wg      sync.WaitGroup
	done    chan struct{}
	// pubMu makes the closed check and the enqueue atomic with respect to Close.
	pubMu   sync.RWMutex
	closed  atomic.Bool
	dropped atomic.Int64
}

type queued struct {
	ctx context.Context
	ev  core.Event
}

// BusOption configures an EventBus.
type BusOption func(*EventBus)

// WithWorkers sets the async worker count.
func WithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the async queue capacity. Events beyond it are dropped.
func WithQueueSize(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.queue = make(chan queued, n)
		}
	}
}

// WithBusLogger sets the logger used to report dropped events.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(e *EventBus) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	eb := &EventBus{
		mode:    mode,
		logger:  slog.Default(),
		subs:    make(map[int64]subscription),
		queue:   make(chan queued, defaultQueueSize),
		workers: defaultWorkers,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case q := <-e.queue:
					e.dispatch(q.ctx, q.ev)
				case <-e.done:
					e.drain()
					return
				}
			}
		}()
	}
}

// drain delivers whatever is still queued at shutdown.
func (e *EventBus) drain() {
	for {
		select {
		case q := <-e.queue:
			e.dispatch(q.ctx, q.ev)
		default:
			return
		}
	}
}

// Close stops async workers after they drain the queue. Safe to call more than once.
func (e *EventBus) Close() {
	e.pubMu.Lock()
	already := e.closed.Swap(true)
	e.pubMu.Unlock()
	if already {
		return
	}
	close(e.done)
	e.wg.Wait()
}

// Dropped returns how many async events were discarded because the queue was full.
func (e *EventBus) Dropped() int64 { return e.dropped.Load() }

// Subscribe registers a handler for one event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler EventHandler) func() {
	return e.add(subscription{typ: typ, fn: handler})
}

// SubscribeAll registers a handler for every event type.
func (e *EventBus) SubscribeAll(handler EventHandler) func() {
	return e.add(subscription{all: true, fn: handler})
}

func (e *EventBus) add(s subscription) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	s.id = e.nextID
	e.subs[s.id] = s
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, s.id)
	}
}

// Publish sends an event to subscribers. Async mode never blocks the caller.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		e.pubMu.RLock()
		defer e.pubMu.RUnlock()
		if e.closed.Load() {
			e.dropped.Add(1)
			return
		}
		// handlers outlive the request that produced the event
		select {
		case e.queue <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
		default:
			e.dropped.Add(1)
			e.logger.Warn("event dropped, queue full", "type", ev.Type, "user_id", ev.UserID)
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.subs))
	for _, s := range e.subs {
		if s.all || s.typ == ev.Type {
			handlers = append(handlers, s.fn)
		}
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
