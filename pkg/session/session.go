// Package session provides the in-memory session store backing the
// admin UI login. Sessions are process-lifetime only: a restart
// invalidates every token and clients must log in again.
package session

import (
	"errors"
	"time"
)

// DefaultTTL is how long a session stays valid after login.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the background sweeper removes
// expired sessions that nobody re-validates.
const DefaultSweepInterval = time.Hour

// ErrInvalidSession is returned when a token is unknown or expired.
var ErrInvalidSession = errors.New("session invalid or expired")

// Session is an issued admin login session.
type Session struct {
	// Token is the opaque session identifier handed to the client.
	Token string

	// Username is the admin username the session was issued for.
	Username string

	// CreatedAt is when the session was issued.
	CreatedAt time.Time

	// ExpiresAt is when the session stops validating.
	ExpiresAt time.Time
}

// TokenPrefix returns a short, log-safe prefix of a token. Full token
// values must never appear in logs.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
