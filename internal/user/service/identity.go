// Package service adapts the user store to the identity lookups the presence tracker needs.
package service

import (
	"context"

	presencedomain "online-status/internal/presence/domain"
	"online-status/internal/user/domain"
	"online-status/internal/user/repository"
)

// IdentityProvider resolves presence identities from the user repository.
type IdentityProvider struct {
	repo repository.Repository
}

// NewIdentityProvider returns a provider reading from repo.
func NewIdentityProvider(repo repository.Repository) *IdentityProvider {
	return &IdentityProvider{repo: repo}
}

func toIdentity(u *domain.User) *presencedomain.Identity {
	return &presencedomain.Identity{
		DisplayName: u.DisplayName,
		Contact:     u.Email,
		Roles:       append([]string(nil), u.Roles...),
	}
}

// ResolveIdentity returns the identity for userID, or nil if the user is unknown.
func (p *IdentityProvider) ResolveIdentity(ctx context.Context, userID int64) (*presencedomain.Identity, error) {
	u, err := p.repo.GetByID(ctx, userID)
	if err != nil || u == nil {
		return nil, err
	}
	return toIdentity(u), nil
}

// ResolveIdentities resolves many users in one repository call. Unknown users are absent from the result.
func (p *IdentityProvider) ResolveIdentities(ctx context.Context, userIDs []int64) (map[int64]*presencedomain.Identity, error) {
	users, err := p.repo.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*presencedomain.Identity, len(users))
	for id, u := range users {
		out[id] = toIdentity(u)
	}
	return out, nil
}
