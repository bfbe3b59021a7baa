package auth

import (
	"context"
	"strings"
)

// ContextKey is the type used for context keys.
type ContextKey string

const (
	// ContextKeyUserID holds the canonical user id of the signed-in user.
	ContextKeyUserID ContextKey = "userID"
	// ContextKeyClaims holds the validated session claims.
	ContextKeyClaims ContextKey = "sessionClaims"
)

// WithUserID returns a context carrying the canonical user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, strings.TrimSpace(userID))
}

// UserIDFromContext returns the signed-in user id, or false when the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// WithClaims returns a context carrying the validated session claims.
func WithClaims(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}

// ClaimsFromContext returns the session claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (SessionClaims, bool) {
	if ctx == nil {
		return SessionClaims{}, false
	}
	claims, ok := ctx.Value(ContextKeyClaims).(SessionClaims)
	return claims, ok
}
