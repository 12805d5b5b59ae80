package models

import "errors"

var (
	// ErrInvalidConfiguration rejects a bad session or camera setup; nothing is created or mutated.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidTelemetry rejects an out-of-range sample; the sample is dropped.
	ErrInvalidTelemetry = errors.New("invalid telemetry")
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCameraNotFound is returned when a switch target is not registered.
	ErrCameraNotFound = errors.New("camera not found")
	// ErrStaleDecision marks a decision superseded by a race. Never surfaced to telemetry callers.
	ErrStaleDecision = errors.New("stale decision")
)
