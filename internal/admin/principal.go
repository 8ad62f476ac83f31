// Package admin implements the Admin Surface & Auth Validator: the echo
// request/response API for health, principal validation, stats, signal
// history, and whitelist/client management (§4.7, §6).
package admin

import "context"

// Role is the kind of caller a request resolved to.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Principal is the authenticated caller attached to the request context by
// the auth middleware (§4.7). ClientID is empty for an admin principal.
type Principal struct {
	Role     Role
	ClientID string
}

type principalKey struct{}

// withPrincipal returns a new context carrying p.
func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFromContext extracts the principal attached by the auth
// middleware, mirroring the pack's own WithUserID/GetUserID context-key
// convention generalized to this relay's admin/client principal.
func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
