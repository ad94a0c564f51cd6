package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a user known to the identity provider. Presence records reference it by ID.
type User struct {
	ID          int64
	DisplayName string
	Email       string
	Roles       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID <= 0 {
		return errors.New("id must be positive")
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		return errors.New("display name is required")
	}
	for _, r := range u.Roles {
		if r == "" || strings.Contains(r, ",") {
			return errors.New("roles must be non-empty and must not contain commas")
		}
	}
	return nil
}

// EncodeRoles joins roles for the comma-separated roles column.
func EncodeRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// DecodeRoles splits the roles column. An empty column yields no roles.
func DecodeRoles(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
