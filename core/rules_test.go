package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBadgesForScore(t *testing.T) {
	tests := []struct {
		score int
		want  BadgeSet
	}{
		{0, NewBadgeSet()},
		{1, NewBadgeSet(BadgeCodeNinja)},
		{15, NewBadgeSet(BadgeCodeNinja)},
		{29, NewBadgeSet(BadgeCodeNinja)},
		{30, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp)},
		{45, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp)},
		{60, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster)},
		{75, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster)},
		{100, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BadgesForScore(tt.score), "score %d", tt.score)
	}
}

func TestApplyNeverRemovesBadges(t *testing.T) {
	rule := DefaultBadgeRule()
	all := NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster)

	next, granted := rule.Apply(all, 20)
	assert.Equal(t, all, next)
	assert.Empty(t, granted)

	for start := BadgeSet(0); start <= all; start++ {
		for score := MinScore; score <= MaxScore; score++ {
			next, _ := rule.Apply(start, score)
			assert.True(t, next.Contains(start), "start=%s score=%d", start, score)
		}
	}
}

func TestApplyReportsGranted(t *testing.T) {
	rule := DefaultBadgeRule()

	next, granted := rule.Apply(NewBadgeSet(BadgeCodeNinja), 75)
	assert.Equal(t, NewBadgeSet(BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster), next)
	assert.Equal(t, []Badge{BadgeCodeChamp, BadgeCodeMaster}, granted)

	_, granted = rule.Apply(0, 0)
	assert.Empty(t, granted)
}
