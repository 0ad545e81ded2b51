package analytics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"coderhack/core"
)

const namespace = "coderhack"

// Collector turns domain events into Prometheus metrics.
// Register Handle on the service event bus.
type Collector struct {
	registrations prometheus.Counter
	deletions     prometheus.Counter
	scoreUpdates  prometheus.Counter
	badges        *prometheus.CounterVec
	scores        prometheus.Histogram
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Users registered.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_deleted_total",
			Help:      "Users deleted.",
		}),
		scoreUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_updates_total",
			Help:      "Accepted score updates.",
		}),
		badges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_awarded_total",
			Help:      "Badges granted, by badge.",
		}, []string{"badge"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submitted_score",
			Help:      "Distribution of accepted scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
	}
	for _, m := range []prometheus.Collector{c.registrations, c.deletions, c.scoreUpdates, c.badges, c.scores} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	// expose every badge at zero so dashboards see the full label set
	for _, b := range core.AllBadges() {
		c.badges.WithLabelValues(b.String())
	}
	return c, nil
}

// Handle records one event. Its signature matches engine.EventHandler.
func (c *Collector) Handle(_ context.Context, e core.Event) {
	switch e.Type {
	case core.EventUserRegistered:
		c.registrations.Inc()
	case core.EventUserDeleted:
		c.deletions.Inc()
	case core.EventScoreUpdated:
		c.scoreUpdates.Inc()
		c.scores.Observe(float64(e.Score))
	case core.EventBadgeAwarded:
		if e.Badge.Valid() {
			c.badges.WithLabelValues(e.Badge.String()).Inc()
		}
	}
}
