package core

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Caller-visible error kinds. Service errors wrap these; test with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
)

// MaxUserIDLength bounds ids in characters so every store can key on them.
const MaxUserIDLength = 768

// ValidateUserID rejects empty ids and ids longer than MaxUserIDLength.
// Whitespace is significant and kept verbatim.
func ValidateUserID(id UserID) error {
	if id == "" {
		return fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}
	if n := utf8.RuneCountInString(string(id)); n > MaxUserIDLength {
		return fmt.Errorf("user id has %d characters, limit is %d: %w", n, MaxUserIDLength, ErrInvalidArgument)
	}
	return nil
}

// ValidateUsername rejects empty names.
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("username is required: %w", ErrInvalidArgument)
	}
	return nil
}

// ValidateScore ensures score lies in [MinScore, MaxScore].
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("score %d must be between %d and %d: %w", score, MinScore, MaxScore, ErrInvalidArgument)
	}
	return nil
}
