package core

// Threshold grants Badge once a score reaches Min.
type Threshold struct {
	Min   int
	Badge Badge
}

// BadgeRule maps a score to the badges it earns. Evaluation is additive only.
type BadgeRule struct {
	Thresholds []Threshold
}

// DefaultBadgeRule is the contest rule: 1 → CODE_NINJA, 30 → CODE_CHAMP, 60 → CODE_MASTER.
func DefaultBadgeRule() BadgeRule {
	return BadgeRule{Thresholds: []Threshold{
		{Min: 1, Badge: BadgeCodeNinja},
		{Min: 30, Badge: BadgeCodeChamp},
		{Min: 60, Badge: BadgeCodeMaster},
	}}
}

// Earned returns every badge whose threshold score meets.
func (r BadgeRule) Earned(score int) BadgeSet {
	var s BadgeSet
	for _, t := range r.Thresholds {
		if score >= t.Min {
			s = s.With(t.Badge)
		}
	}
	return s
}

// Apply unions the badges earned by score into current. Badges are never removed,
// so the result always contains current. granted lists badges not held before.
func (r BadgeRule) Apply(current BadgeSet, score int) (next BadgeSet, granted []Badge) {
	next = current.Union(r.Earned(score))
	for _, b := range next.Slice() {
		if !current.Has(b) {
			granted = append(granted, b)
		}
	}
	return next, granted
}

// BadgesForScore evaluates the default rule.
func BadgesForScore(score int) BadgeSet {
	return DefaultBadgeRule().Earned(score)
}
