package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coderhack/core"
)

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous; register it on an async event bus to keep requests fast.
type Sink struct {
	client    *http.Client
	logger    *slog.Logger
	endpoints []string
	types     map[core.EventType]struct{}
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets where delivery failures are reported.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventTypes restricts delivery to the given types. Default is every type.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			return
		}
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Handle posts the event JSON to all endpoints. Its signature matches engine.EventHandler.
func (s *Sink) Handle(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook encode failed", "event_id", e.ID, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, e, body); err != nil {
			s.logger.WarnContext(ctx, "webhook delivery failed", "endpoint", ep, "event_id", e.ID, "type", e.Type, "error", err)
		}
	}
}

func (s *Sink) post(ctx context.Context, endpoint string, e core.Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Coderhack-Event", string(e.Type))
	req.Header.Set("X-Coderhack-Delivery", e.ID)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
