package domain

import "time"

// Record is the last-activity entry for one user. There is at most one Record per UserID;
// it is overwritten on every accepted heartbeat and never versioned.
type Record struct {
	UserID       int64
	LastActivity time.Time // UTC
	IPAddress    string
	UserAgent    string
	PageURL      string
}

// IsOnline reports whether the record is within timeout of now.
func (r *Record) IsOnline(now time.Time, timeout time.Duration) bool {
	if r == nil {
		return false
	}
	return now.Sub(r.LastActivity) <= timeout
}

// Identity is the user metadata resolved from the identity provider.
type Identity struct {
	DisplayName string
	Contact     string
	Roles       []string
}

// GuestIdentity is rendered for records whose user cannot be resolved.
func GuestIdentity() Identity {
	return Identity{DisplayName: "Guest", Contact: "", Roles: []string{"none"}}
}

// OnlineUser is the read model returned by presence listings: a Record joined with its Identity.
type OnlineUser struct {
	Record
	Identity
	Guest bool // true when the identity provider had no match
}

// RedactedValue replaces client details a viewer may not see.
const RedactedValue = "N/A"

// Redacted returns the public view of u: display name, guest flag and last activity are kept, contact
// and client details are replaced by RedactedValue and roles are dropped.
func (u OnlineUser) Redacted() OnlineUser {
	u.Contact = RedactedValue
	u.Roles = nil
	u.IPAddress = RedactedValue
	u.UserAgent = RedactedValue
	u.PageURL = RedactedValue
	return u
}
