package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coderhack/core"
)

const tracerName = "coderhack/engine"

// UserService validates requests, applies the badge rule and delegates persistence to a Store.
//
// Writes to the same user id are serialized inside one process. Two processes sharing
// a store can still race on UpdateScore for one id; the last Put wins on the whole
// record, badges included.
type UserService struct {
	store  Store
	bus    *EventBus
	rule   core.BadgeRule
	logger *slog.Logger
	tracer trace.Tracer
	locks  keyLocks
}

// ServiceOption configures a UserService.
type ServiceOption func(*UserService)

// WithBadgeRule overrides the default thresholds.
func WithBadgeRule(r core.BadgeRule) ServiceOption {
	return func(s *UserService) { s.rule = r }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *UserService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets the provider spans are created from; defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *UserService) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewUserService(store Store, bus *EventBus, opts ...ServiceOption) *UserService {
	if store == nil || bus == nil {
		panic("NewUserService requires non-nil store and bus")
	}
	s := &UserService{
		store:  store,
		bus:    bus,
		rule:   core.DefaultBadgeRule(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *UserService) Subscribe(typ core.EventType, handler EventHandler) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubscribeAll registers handler for every event type.
func (s *UserService) SubscribeAll(handler EventHandler) func() {
	return s.bus.SubscribeAll(handler)
}

// Register creates a user with score 0 and no badges.
func (s *UserService) Register(ctx context.Context, id core.UserID, username string) (_ core.User, err error) {
	ctx, span := s.start(ctx, "UserService.Register", id)
	defer func() { finish(span, err) }()

	if err := core.ValidateUserID(id); err != nil {
		return core.User{}, err
	}
	if err := core.ValidateUsername(username); err != nil {
		return core.User{}, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "check user failed", "user_id", id, "error", err)
		return core.User{}, fmt.Errorf("check user %s: %w", id, err)
	}
	if exists {
		return core.User{}, fmt.Errorf("user %s already exists: %w", id, core.ErrConflict)
	}

	user := core.NewUser(id, username)
	if err := s.store.Put(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "save user failed", "user_id", id, "error", err)
		return core.User{}, fmt.Errorf("save user %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", id, "username", username)
	s.bus.Publish(ctx, core.NewUserRegistered(user))
	return user, nil
}

// GetByID returns ok=false when the user does not exist.
func (s *UserService) GetByID(ctx context.Context, id core.UserID) (_ core.User, ok bool, err error) {
	ctx, span := s.start(ctx, "UserService.GetByID", id)
	defer func() { finish(span, err) }()

	if err := core.ValidateUserID(id); err != nil {
		return core.User{}, false, err
	}
	user, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return core.User{}, false, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, ok, nil
}

// UpdateScore sets the score and grants any badges it earns. Held badges are kept
// even when the new score is below their threshold.
func (s *UserService) UpdateScore(ctx context.Context, id core.UserID, score int) (_ core.User, err error) {
	ctx, span := s.start(ctx, "UserService.UpdateScore", id)
	span.SetAttributes(attribute.Int("user.score", score))
	defer func() { finish(span, err) }()

	if err := core.ValidateScore(score); err != nil {
		return core.User{}, err
	}
	if err := core.ValidateUserID(id); err != nil {
		return core.User{}, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	user, ok, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "load user failed", "user_id", id, "error", err)
		return core.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}

	badges, granted := s.rule.Apply(user.Badges, score)
	user.Score = score
	user.Badges = badges
	if err := s.store.Put(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "save user failed", "user_id", id, "error", err)
		return core.User{}, fmt.Errorf("save user %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "score updated", "user_id", id, "score", score, "badges", badges.String())
	s.bus.Publish(ctx, core.NewScoreUpdated(user))
	for _, b := range granted {
		s.bus.Publish(ctx, core.NewBadgeAwarded(user, b))
	}
	return user, nil
}

// Delete removes the user; ErrNotFound if absent.
func (s *UserService) Delete(ctx context.Context, id core.UserID) (err error) {
	ctx, span := s.start(ctx, "UserService.Delete", id)
	defer func() { finish(span, err) }()

	if err := core.ValidateUserID(id); err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	user, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get user %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "delete user failed", "user_id", id, "error", err)
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	s.bus.Publish(ctx, core.NewUserDeleted(user))
	return nil
}

// ListAll returns every user ordered by ascending score. Never nil.
func (s *UserService) ListAll(ctx context.Context) (_ []core.User, err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.ListAll")
	defer func() { finish(span, err) }()

	users, err := s.store.ListByScoreAsc(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []core.User{}
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// Ping checks that the store answers a read.
func (s *UserService) Ping(ctx context.Context) error {
	_, err := s.store.Exists(ctx, "healthcheck_probe")
	return err
}

func (s *UserService) Close() { s.bus.Close() }

func (s *UserService) start(ctx context.Context, name string, id core.UserID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user.id", string(id))))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
