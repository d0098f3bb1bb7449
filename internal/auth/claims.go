package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims scope every admin request to one church. Super admins still carry a
// home church; cross-church access is decided by rbac.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	ChurchID  string    `json:"church_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// complete reports the first identity claim a token of its type must carry.
// Refresh tokens are role-less.
func (c Claims) complete() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("%w: user_id", ErrMissingClaim)
	case c.ChurchID == "":
		return fmt.Errorf("%w: church_id", ErrMissingClaim)
	case c.TokenType == TokenTypeAccess && c.Role == "":
		return fmt.Errorf("%w: role", ErrMissingClaim)
	}
	return nil
}
