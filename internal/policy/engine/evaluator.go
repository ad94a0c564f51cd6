package engine

import "context"

// Viewer is the caller asking to see presence details.
type Viewer struct {
	UserID int64
	Roles  []string
}

// VisibilityEvaluator decides whether a viewer may see a user's client details (IP address, user agent, page).
type VisibilityEvaluator interface {
	ShowDetails(ctx context.Context, viewer Viewer, subjectUserID int64) (bool, error)
}
