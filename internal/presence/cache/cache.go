// Package cache holds the short-lived per-user entries kept in front of the presence store:
// the debounce guard that coalesces heartbeat writes and the cached online/offline verdict.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is a key/TTL store. An entry is never returned after its TTL has elapsed.
type Cache interface {
	// Get returns the value for key and true, or "", false when missing or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl, replacing any existing entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value under key for ttl only if no live entry exists. Returns true if stored.
	// The check and the set are one atomic step.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Keys carry the user id as a hash tag so both entries of one user land in the same Redis Cluster slot
// and can be deleted with a single DEL.
func userTag(userID int64) string {
	return "presence:{" + strconv.FormatInt(userID, 10) + "}:"
}

// GuardKey is the debounce-guard entry for userID.
func GuardKey(userID int64) string {
	return userTag(userID) + "guard"
}

// StatusKey is the cached online/offline verdict for userID.
func StatusKey(userID int64) string {
	return userTag(userID) + "status"
}

// UserKeys returns every cache key held for userID.
func UserKeys(userID int64) []string {
	return []string{GuardKey(userID), StatusKey(userID)}
}
