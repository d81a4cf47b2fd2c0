package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is the caller's authorization level.
type Role string

// Roles, from least to most privileged
const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// CanModerate reports whether r may act on the review queue and monitors.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// TokenTypeAccess is the only token type the API accepts.
const TokenTypeAccess = "access"

// JWTService signs and verifies access tokens. Tokens are issued elsewhere
// in production; GenerateToken backs development tooling and tests.
type JWTService interface {
	// GenerateToken creates a signed access token for userID with role.
	GenerateToken(ctx context.Context, userID uuid.UUID, role Role) (string, error)

	// ValidateToken verifies signature, lifetime and token type and returns
	// the decoded claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the decoded content of a verified token.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is the caller's authorization level.
	Role Role `json:"role,omitempty"`

	// TokenType indicates the purpose of the token.
	TokenType string `json:"type,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
