package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxTenantID
)

var ErrNoIdentity = errors.New("auth: user_id not in context")

func WithIdentity(ctx context.Context, userID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}

// TenantID returns the tenant selected in the token, or "" when the session has none.
func TenantID(ctx context.Context) string {
	s, _ := ctx.Value(ctxTenantID).(string)
	return s
}
