package middleware

import "context"

type contextKey int

const (
	userIDKey contextKey = iota
	roleKey
	emailKey
	requestIDKey
)

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key contextKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

// UserIDFromContext returns the authenticated token subject.
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, userIDKey) }

// RoleFromContext returns the caller's lowercased role claim.
func RoleFromContext(ctx context.Context) string { return stringValue(ctx, roleKey) }

// EmailFromContext returns the token's email claim, if any.
func EmailFromContext(ctx context.Context) string { return stringValue(ctx, emailKey) }

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}

func WithEmail(ctx context.Context, email string) context.Context {
	return withValue(ctx, emailKey, email)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}
