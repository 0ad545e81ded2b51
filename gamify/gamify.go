package gamify

import (
	"context"
	"log/slog"

	mem "coderhack/adapters/memory"
	"coderhack/core"
	"coderhack/engine"
)

// EventSink is anything that consumes every domain event: the realtime hub,
// webhook sinks, metrics collectors.
type EventSink interface {
	Handle(ctx context.Context, e core.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e core.Event)

func (f EventSinkFunc) Handle(ctx context.Context, e core.Event) { f(ctx, e) }

// Option configures the service builder.
type Option func(*config)

type config struct {
	store   engine.Store
	mode    engine.DispatchMode
	rule    *core.BadgeRule
	logger  *slog.Logger
	busOpts []engine.BusOption
	svcOpts []engine.ServiceOption
	sinks   []EventSink
}

// WithStore sets the persistence adapter.
func WithStore(s engine.Store) Option { return func(c *config) { c.store = s } }

// WithBadgeRule replaces the default score thresholds.
func WithBadgeRule(r core.BadgeRule) Option { return func(c *config) { c.rule = &r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithBusOptions tunes the event bus (workers, queue size).
func WithBusOptions(opts ...engine.BusOption) Option {
	return func(c *config) { c.busOpts = append(c.busOpts, opts...) }
}

// WithServiceOptions passes options straight to engine.NewUserService.
func WithServiceOptions(opts ...engine.ServiceOption) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, opts...) }
}

// WithLogger sets the logger for the service and the event bus.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithRealtime streams all events to the hub.
func WithRealtime(h interface {
	Broadcast(ctx context.Context, e core.Event)
}) Option {
	return WithSink(EventSinkFunc(h.Broadcast))
}

// WithSink subscribes a consumer to every event type.
func WithSink(s EventSink) Option {
	return func(c *config) {
		if s != nil {
			c.sinks = append(c.sinks, s)
		}
	}
}

// New builds a configured UserService. If not provided, defaults are used:
//   - store: in-memory
//   - rule: core.DefaultBadgeRule
//   - dispatch: async
func New(opts ...Option) *engine.UserService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}

	busOpts := cfg.busOpts
	svcOpts := cfg.svcOpts
	if cfg.logger != nil {
		busOpts = append([]engine.BusOption{engine.WithBusLogger(cfg.logger)}, busOpts...)
		svcOpts = append([]engine.ServiceOption{engine.WithLogger(cfg.logger)}, svcOpts...)
	}
	if cfg.rule != nil {
		svcOpts = append(svcOpts, engine.WithBadgeRule(*cfg.rule))
	}

	bus := engine.NewEventBus(cfg.mode, busOpts...)
	svc := engine.NewUserService(cfg.store, bus, svcOpts...)
	for _, s := range cfg.sinks {
		svc.SubscribeAll(s.Handle)
	}
	return svc
}
