package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identity is the persisted user record. PasswordHash and RefreshToken
// are write-only from the API's perspective: both carry `json:"-"` so a
// serialized Identity is always a safe public projection, and Projection
// strips them for callers that hold the record itself.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:idn"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FullName      string     `bun:"full_name,notnull" json:"full_name,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	AvatarURL     string     `bun:"avatar_url,notnull" json:"avatar_url,omitempty"`
	CoverImageURL string     `bun:"cover_image_url" json:"cover_image_url,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	RefreshToken  *string    `bun:"refresh_token,nullzero" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Projection returns a copy of the identity with credential material
// removed. Response payloads must only ever carry projections.
func (i *Identity) Projection() *Identity {
	if i == nil {
		return nil
	}
	p := *i
	p.PasswordHash = ""
	p.RefreshToken = nil
	return &p
}

// HasActiveSession reports whether a refresh token is currently
// persisted for this identity.
func (i *Identity) HasActiveSession() bool {
	return i != nil && i.RefreshToken != nil && *i.RefreshToken != ""
}
