package auth

import (
	"context"
	"slices"

	"github.com/tableside/floor/internal/enum"
)

// Session identifies the staff member behind a call. It is passed
// explicitly to every coordinator operation; nothing reads it from
// package-level state.
type Session struct {
	UserID   int64
	Username string
	Role     string
	// Token is forwarded to the gateway as the bearer credential.
	Token string
}

// NewSession builds a Session from validated claims and the raw token.
func NewSession(claims *Claims, token string) Session {
	return Session{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		Token:    token,
	}
}

// ServiceSession is used by background work (the refresh loop) that acts
// on behalf of the floor service rather than a person.
func ServiceSession(token string) Session {
	return Session{Username: "floor-service", Role: enum.RoleStaff, Token: token}
}

// HasRole reports whether the session holds one of roles.
func (s Session) HasRole(roles ...string) bool {
	return slices.Contains(roles, s.Role)
}

// CanOperateFloor reports whether the session may drive table, booking and
// payment workflows.
func (s Session) CanOperateFloor() bool {
	return s.HasRole(enum.RoleAdmin, enum.RoleStaff)
}

type sessionKey struct{}

// WithSession scopes s to ctx so the gateway client can forward its token.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
