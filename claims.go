package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind discriminates the two token families the service signs.
// Each kind has its own signing key and TTL; a token presented to the
// wrong verifier fails validation regardless of signature.
type TokenKind string

const (
	// TokenKindAccess authorizes protected operations. Short lived.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh mints new token pairs. Long lived, persisted
	// server-side, single use per rotation.
	TokenKindRefresh TokenKind = "refresh"
)

// SessionClaims is the claim set carried by both token kinds. Access
// tokens also carry username and email so handlers can label the actor
// without a store read; refresh tokens carry the identity id only.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string    `json:"uid,omitempty"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
	Kind     TokenKind `json:"kind,omitempty"`
}

// IdentityID parses the identity id carried by the claims, preferring
// the uid claim and falling back to the registered subject.
func (c *SessionClaims) IdentityID() (uuid.UUID, error) {
	raw := c.UID
	if raw == "" {
		raw = c.RegisteredClaims.Subject
	}
	return uuid.Parse(raw)
}

// Expires returns the expiration instant, zero when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
