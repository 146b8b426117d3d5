package auth

import "context"

type ctxKey string

const identityKey ctxKey = "auth_identity"

// ContextWithIdentity stores the resolved identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	if !ok || v.ID == "" {
		return Identity{}, false
	}
	return v, true
}

// IsAdmin reports whether the context carries an admin identity.
func IsAdmin(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return ok && id.Role == RoleAdmin
}
