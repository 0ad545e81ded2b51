package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventScoreUpdated   EventType = "score_updated"
	EventBadgeAwarded   EventType = "badge_awarded"
	EventUserDeleted    EventType = "user_deleted"
)

// EventTypes lists every event type the service publishes.
func EventTypes() []EventType {
	return []EventType{EventUserRegistered, EventScoreUpdated, EventBadgeAwarded, EventUserDeleted}
}

// Event represents an immutable domain event.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Score    int       `json:"score"`
	Badge    Badge     `json:"badge,omitempty"`
	Badges   BadgeSet  `json:"badges"`
}

func newEvent(typ EventType, u User) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		Time:     time.Now().UTC(),
		UserID:   u.UserID,
		Username: u.Username,
		Score:    u.Score,
		Badges:   u.Badges,
	}
}

func NewUserRegistered(u User) Event { return newEvent(EventUserRegistered, u) }

func NewScoreUpdated(u User) Event { return newEvent(EventScoreUpdated, u) }

func NewBadgeAwarded(u User, badge Badge) Event {
	ev := newEvent(EventBadgeAwarded, u)
	ev.Badge = badge
	return ev
}

func NewUserDeleted(u User) Event { return newEvent(EventUserDeleted, u) }
