package model

import "strings"

// Status is the normalized campaign state. The backend is inconsistent about
// casing and wording ("ACTIVE", "active", "running"), so raw status strings
// must always go through ParseStatus before comparison.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ParseStatus normalizes a raw backend status string.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "draft":
		return StatusDraft
	case "active", "running", "sending", "in_progress":
		return StatusActive
	case "paused":
		return StatusPaused
	case "completed", "complete", "done":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "stopped", "cancelled", "canceled":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further progress updates are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Matches compares a raw backend string against this status.
func (s Status) Matches(raw string) bool {
	return ParseStatus(raw) == s
}

func (s Status) String() string {
	return string(s)
}
