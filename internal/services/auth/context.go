package auth

import "context"

// Identity is what the auth middleware knows about the caller after
// validating the access token against the live session.
type Identity struct {
	UserID int64
	SID    string
	Role   string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
