// Package auth issues and resolves login sessions and guards routes that
// need an authenticated or privileged caller.
package auth

import (
	"context"

	"github.com/example/eco-collect/internal/repository"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   uint            `json:"user_id"`
	UserName string          `json:"user_name"`
	Role     repository.Role `json:"role"`
}

// HasRole reports whether the identity holds one of roles.
func (i *Identity) HasRole(roles ...repository.Role) bool {
	if i == nil {
		return false
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

type identityKey struct{}

// ContextWithIdentity returns a copy of ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the session middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// GetUserID retrieves the authenticated user id from context.
func GetUserID(ctx context.Context) (uint, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return identity.UserID, true
}
