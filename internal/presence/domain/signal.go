package domain

import (
	"strings"
	"unicode"
)

// Column widths of user_online_status; values are truncated to fit.
const (
	MaxIPAddressLen = 45
	MaxPageURLLen   = 255
	MaxUserAgentLen = 512
)

// UnknownIP is recorded when no client address could be determined.
const UnknownIP = "0.0.0.0"

// Ack statuses returned to heartbeat senders.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ClientMetadata is the best-effort description of the client that sent a heartbeat.
type ClientMetadata struct {
	IPAddress string
	UserAgent string
	PageURL   string
}

// Sanitize returns a copy with whitespace trimmed, control characters removed and each field cut to its column width.
func (m ClientMetadata) Sanitize() ClientMetadata {
	out := ClientMetadata{
		IPAddress: clean(m.IPAddress, MaxIPAddressLen),
		UserAgent: clean(m.UserAgent, MaxUserAgentLen),
		PageURL:   clean(m.PageURL, MaxPageURLLen),
	}
	if out.IPAddress == "" {
		out.IPAddress = UnknownIP
	}
	return out
}

func clean(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}

// Signal is one heartbeat event as received from a client: the bearer token (may be empty) and metadata.
type Signal struct {
	Token string
	Meta  ClientMetadata
}

// Ack is the acknowledgment returned for a Signal.
type Ack struct {
	Status string
}
