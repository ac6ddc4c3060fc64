// Package auth carries the authenticated user through a request.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when no valid identity is present
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller
type Identity struct {
	UserID string
}

// Valid reports whether the identity names a user
func (i Identity) Valid() bool {
	return i.UserID != ""
}

type contextKey struct{}

// WithIdentity stores the identity in the context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext retrieves the identity stored by WithIdentity
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || !id.Valid() {
		return Identity{}, false
	}
	return id, true
}
