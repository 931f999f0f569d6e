package types

import "errors"

// Sentinel failure categories. Operations wrap these with %w so the
// orchestration service can map them onto result status codes without
// inspecting message text.
var (
	// ErrValidation marks a caller mistake (bad id, missing field).
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a state conflict (preconditions not met,
	// duplicate keys).
	ErrConflict = errors.New("conflict")
)
