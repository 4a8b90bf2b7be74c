// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/identity-service/internal/ctxkeys"
	"codeberg.org/oliverandrich/identity-service/internal/models"
)

// Principal is the identity proven by an access token.
type Principal struct {
	UserID  string
	Role    models.Role
	TokenID string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxkeys.Principal{}, p)
}

// PrincipalFrom returns the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxkeys.Principal{}).(Principal)
	return p, ok
}
