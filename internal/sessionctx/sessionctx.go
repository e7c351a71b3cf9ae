// Package sessionctx carries the (user, session) identity of the current
// request through context.Context, so the sandbox and notebook layers can
// resolve per-session state without every signature threading the pair.
package sessionctx

import (
	"context"
	"fmt"
	"strings"
)

// Identity names the owner of a sandbox or notebook session.
type Identity struct {
	UserID    string
	SessionID string
}

// Key returns the canonical storage key for the identity.
func (id Identity) Key() string {
	return id.UserID + ":" + id.SessionID
}

func (id Identity) String() string {
	return id.Key()
}

// Valid reports whether both components are set.
func (id Identity) Valid() bool {
	return id.UserID != "" && id.SessionID != ""
}

type ctxKey struct{}

// With returns a context carrying the given identity.
func With(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From extracts the identity from the context.
// The second return is false when no identity was attached.
func From(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// MustFrom extracts the identity or returns an error suitable for surfacing
// to the tool layer.
func MustFrom(ctx context.Context) (Identity, error) {
	id, ok := From(ctx)
	if !ok || !id.Valid() {
		return Identity{}, fmt.Errorf("no session identity in context")
	}
	return id, nil
}

// Parse converts a "user:session" key back into an Identity.
func Parse(key string) (Identity, error) {
	user, session, ok := strings.Cut(key, ":")
	if !ok || user == "" || session == "" {
		return Identity{}, fmt.Errorf("malformed session key %q", key)
	}
	return Identity{UserID: user, SessionID: session}, nil
}
