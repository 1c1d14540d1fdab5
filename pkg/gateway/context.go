package gateway

import (
	"context"

	"github.com/hfgate/hfgate/pkg/session"
)

// contextKey is a private type for context keys.
type contextKey int

const sessionContextKey contextKey = iota

// withSession attaches an authenticated session to the context.
func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionFrom returns the authenticated session, or nil outside
// session-guarded handlers.
func SessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}
