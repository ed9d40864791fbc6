package sakan

import (
	"github.com/golang-jwt/jwt/v5"
)

// sessionFromToken derives the caller's identity from the access token
// claims. The token is issued and signed by the gateway; the SDK only reads
// the claims for client-side permission gating, so the signature is not
// verified here. The gateway re-checks every write server-side.
func sessionFromToken(token string) *Session {
	if token == "" {
		return &Session{Role: RoleGuest, Status: StatusActive}
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return &Session{Role: RoleGuest, Status: StatusActive}
	}

	session := &Session{Role: RoleUser, Status: StatusActive}
	if sub, err := claims.GetSubject(); err == nil {
		session.UserID = sub
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		session.Role = Role(role)
	}
	if status, ok := claims["status"].(string); ok && status != "" {
		session.Status = AccountStatus(status)
	}
	return session
}
