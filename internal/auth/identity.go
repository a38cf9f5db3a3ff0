package auth

import "context"

// Identity is the per-request caller context. An empty CallerID means the
// caller is anonymous.
type Identity struct {
	CallerID string
	Email    string
	IsAdmin  bool
}

// Anonymous returns the public identity.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated reports whether the caller supplied a verified identity.
func (i Identity) Authenticated() bool {
	return i.CallerID != "" || i.IsAdmin
}

type identityKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored on ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}
