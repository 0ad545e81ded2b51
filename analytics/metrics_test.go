package analytics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderhack/core"
)

func TestCollectorCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	ctx := context.Background()

	u := core.User{UserID: "u1", Username: "alice"}
	c.Handle(ctx, core.NewUserRegistered(u))
	u.Score = 45
	c.Handle(ctx, core.NewScoreUpdated(u))
	c.Handle(ctx, core.NewBadgeAwarded(u, core.BadgeCodeNinja))
	c.Handle(ctx, core.NewBadgeAwarded(u, core.BadgeCodeChamp))
	c.Handle(ctx, core.NewUserDeleted(u))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deletions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scoreUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.badges.WithLabelValues("CODE_NINJA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.badges.WithLabelValues("CODE_CHAMP")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.badges.WithLabelValues("CODE_MASTER")))

	n, err := testutil.GatherAndCount(reg, "coderhack_submitted_score")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectorDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}
