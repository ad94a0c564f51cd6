// Package domain holds the presence telemetry event shared by the emitters, the Kafka producer and the Loki worker.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the presence service.
const (
	EventLogin   = "presence.login"
	EventLogout  = "presence.logout"
	EventSweep   = "presence.sweep"
	EventRequest = "grpc.request"
)

// Event sources.
const (
	SourcePresence = "presence"
	SourceGRPC     = "grpc_interceptor"
)

// Event is one telemetry event. UserID is 0 for events not tied to a user (e.g. a sweep).
type Event struct {
	ID        string          `json:"id"`
	UserID    int64           `json:"userId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent builds an event stamped with at. metadata is marshalled to JSON; on failure the event carries no metadata.
func NewEvent(eventType string, userID int64, metadata any, at time.Time) *Event {
	ev := &Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Source:    SourcePresence,
		CreatedAt: at.UTC(),
	}
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			ev.Metadata = b
		}
	}
	return ev
}
