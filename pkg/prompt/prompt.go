// Package prompt implements the Prompt Registry: versioned, language-qualified
// templated strings addressable by method name. Exactly one prompt per
// (method, language) pair is CURRENT at any time; saving a new version
// atomically flips the previous CURRENT prompt to REPLACED.
package prompt

import (
	"context"
	"errors"
	"time"
)

type (
	// State is the lifecycle state of a Prompt version.
	State string

	// Prompt is a single versioned, language-qualified templated string.
	Prompt struct {
		// ID is the store-assigned identifier for this version.
		ID string
		// Method is the logical step/operation this prompt belongs to.
		Method string
		// Language is the ISO-ish language tag this version renders in
		// (e.g. "en", "fr").
		Language string
		// Message is the templated text using "{{var}}" placeholders and
		// optional "@{groupId}" dictionary-group references.
		Message string
		// State reports whether this version is the active one for
		// (Method, Language).
		State State
		// CreatedTime records when this version was first saved.
		CreatedTime time.Time
		// UpdatedTime records the last time this version's state changed.
		UpdatedTime time.Time
	}

	// Store persists Prompt versions. Implementations must guarantee that
	// Save's CURRENT/REPLACED transition is atomic per (Method, Language).
	Store interface {
		// Current returns the CURRENT prompt for (method, language), or
		// ErrNotFound if none exists.
		Current(ctx context.Context, method, language string) (*Prompt, error)
		// Save persists p. If the existing CURRENT prompt for (p.Method,
		// p.Language) has identical Message text, the returned Prompt
		// inherits its ID and remains CURRENT (idempotent save). Otherwise
		// the previous CURRENT prompt is atomically transitioned to
		// REPLACED and p becomes the new CURRENT version.
		Save(ctx context.Context, p *Prompt) (*Prompt, error)
		// History returns all versions (CURRENT and REPLACED) for (method,
		// language), newest first.
		History(ctx context.Context, method, language string) ([]*Prompt, error)
	}

	// Dictionary resolves dictionary-group references used by Render's
	// "@{groupId}" expansion token.
	Dictionary interface {
		// Group returns the rendered text for groupId, or an empty string
		// if the group is unknown (render-time failures must not block
		// the rest of the template).
		Group(ctx context.Context, groupID string) (string, error)
	}
)

const (
	StateCurrent  State = "CURRENT"
	StateReplaced State = "REPLACED"
)

// ErrNotFound indicates no prompt exists for a (method, language) pair.
var ErrNotFound = errors.New("prompt: not found")

// MissingError is returned by RenderCurrent when no CURRENT prompt exists for
// (method, language). No fallback source is consulted for a missing prompt.
type MissingError struct {
	Method   string
	Language string
}

func (e *MissingError) Error() string {
	return "prompt: no prompt registered for method=" + e.Method + " language=" + e.Language
}
