package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// UserID uniquely identifies a contest participant. It is stored verbatim.
type UserID string

// Score bounds, inclusive.
const (
	MinScore = 0
	MaxScore = 100
)

// User is the persisted record for a participant.
type User struct {
	UserID   UserID   `json:"userId"`
	Username string   `json:"username"`
	Score    int      `json:"score"`
	Badges   BadgeSet `json:"badges"`
}

// NewUser returns a freshly registered user: score 0 and no badges.
func NewUser(id UserID, username string) User {
	return User{UserID: id, Username: username}
}

// Badge is an achievement granted when a score crosses a threshold.
// The zero value is not a valid badge.
type Badge uint8

const (
	BadgeCodeNinja Badge = iota + 1
	BadgeCodeChamp
	BadgeCodeMaster
)

var badgeNames = [...]string{
	BadgeCodeNinja:  "CODE_NINJA",
	BadgeCodeChamp:  "CODE_CHAMP",
	BadgeCodeMaster: "CODE_MASTER",
}

// AllBadges lists every badge in threshold order.
func AllBadges() []Badge {
	return []Badge{BadgeCodeNinja, BadgeCodeChamp, BadgeCodeMaster}
}

// Valid reports whether b is one of the known badges.
func (b Badge) Valid() bool {
	return b >= BadgeCodeNinja && b <= BadgeCodeMaster
}

func (b Badge) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Badge(%d)", uint8(b))
	}
	return badgeNames[b]
}

// ParseBadge converts a badge name such as "CODE_CHAMP" back to a Badge.
func ParseBadge(s string) (Badge, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, b := range AllBadges() {
		if badgeNames[b] == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown badge %q", s)
}

func (b Badge) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid badge %d", uint8(b))
	}
	return []byte(badgeNames[b]), nil
}

func (b *Badge) UnmarshalText(text []byte) error {
	parsed, err := ParseBadge(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// BadgeSet is a set of badges backed by a bitmask. Being a value type, copies never alias.
type BadgeSet uint8

func (b Badge) bit() BadgeSet { return BadgeSet(1) << (b - 1) }

// NewBadgeSet builds a set from the given badges; invalid badges are ignored.
func NewBadgeSet(badges ...Badge) BadgeSet {
	var s BadgeSet
	for _, b := range badges {
		s = s.With(b)
	}
	return s
}

// With returns s plus b.
func (s BadgeSet) With(b Badge) BadgeSet {
	if !b.Valid() {
		return s
	}
	return s | b.bit()
}

// Has reports whether b is in the set.
func (s BadgeSet) Has(b Badge) bool {
	return b.Valid() && s&b.bit() != 0
}

// Union returns every badge present in either set.
func (s BadgeSet) Union(other BadgeSet) BadgeSet { return s | other }

// Contains reports whether every badge in other is also in s.
func (s BadgeSet) Contains(other BadgeSet) bool { return s&other == other }

// Len returns the number of badges held.
func (s BadgeSet) Len() int {
	n := 0
	for _, b := range AllBadges() {
		if s.Has(b) {
			n++
		}
	}
	return n
}

// Slice returns the badges in threshold order.
func (s BadgeSet) Slice() []Badge {
	out := make([]Badge, 0, len(badgeNames))
	for _, b := range AllBadges() {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// Names returns the badge names sorted alphabetically.
func (s BadgeSet) Names() []string {
	names := make([]string, 0, len(badgeNames))
	for _, b := range s.Slice() {
		names = append(names, b.String())
	}
	sort.Strings(names)
	return names
}

// ParseBadgeNames is the inverse of Names.
func ParseBadgeNames(names []string) (BadgeSet, error) {
	var s BadgeSet
	for _, n := range names {
		b, err := ParseBadge(n)
		if err != nil {
			return 0, err
		}
		s = s.With(b)
	}
	return s, nil
}

func (s BadgeSet) String() string {
	return "{" + strings.Join(s.Names(), ",") + "}"
}

// MarshalJSON encodes the set as a sorted array of badge names.
func (s BadgeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *BadgeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseBadgeNames(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
