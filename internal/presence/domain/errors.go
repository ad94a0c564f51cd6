package domain

import "errors"

var (
	// ErrInvalidIdentity is returned when a heartbeat or query carries a malformed or unverifiable identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrStoreUnavailable wraps transient presence store failures.
	ErrStoreUnavailable = errors.New("presence store unavailable")
)
