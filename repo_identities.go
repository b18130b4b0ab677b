package identity

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identities is the credential store. Read accessors return the full
// record; callers building response payloads must project it first.
type Identities interface {
	repository.Repository[*Identity]

	Register(ctx context.Context, record *Identity) (*Identity, error)
	RegisterTx(ctx context.Context, tx bun.IDB, record *Identity) (*Identity, error)
	Create(ctx context.Context, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error)

	GetByUsernameOrEmail(ctx context.Context, identifier string) (*Identity, error)
	GetByUsernameOrEmailTx(ctx context.Context, tx bun.IDB, identifier string) (*Identity, error)

	UpdateRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
	UpdateRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token *string) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	UpdateProfile(ctx context.Context, id uuid.UUID, fields ProfileUpdate) (*Identity, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fields ProfileUpdate) (*Identity, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (*Identity, error)
	UpdateAvatarTx(ctx context.Context, tx bun.IDB, id uuid.UUID, avatarURL string) (*Identity, error)
}

// ProfileUpdate carries the mutable profile fields. Blank fields are
// left untouched.
type ProfileUpdate struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (p ProfileUpdate) isZero() bool {
	return strings.TrimSpace(p.FullName) == "" && strings.TrimSpace(p.Email) == ""
}

type identities struct {
	repository.Repository[*Identity]
	db *bun.DB
}

var (
	_ Identities                       = (*identities)(nil)
	_ repository.Repository[*Identity] = (*identities)(nil)
)

func NewIdentitiesRepository(db *bun.DB) Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &identities{
		Repository: repo,
		db:         db,
	}
}

func (a *identities) Register(ctx context.Context, record *Identity) (*Identity, error) {
	return a.RegisterTx(ctx, a.db, record)
}

func (a *identities) RegisterTx(ctx context.Context, tx bun.IDB, record *Identity) (*Identity, error) {
	return a.CreateTx(ctx, tx, record)
}

func (a *identities) Create(ctx context.Context, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *identities) CreateTx(ctx context.Context, tx bun.IDB, record *Identity, criteria ...repository.InsertCriteria) (*Identity, error) {
	prepareIdentityDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetByUsernameOrEmail resolves a login selector against the username
// column and, when the selector parses as an address, the email column.
// Absent records come back as a record-not-found signal, never a plain
// error, so callers pick the error kind.
func (a *identities) GetByUsernameOrEmail(ctx context.Context, identifier string) (*Identity, error) {
	return a.GetByUsernameOrEmailTx(ctx, a.db, identifier)
}

func (a *identities) GetByUsernameOrEmailTx(ctx context.Context, tx bun.IDB, identifier string) (*Identity, error) {
	options := resolveIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &Identity{}
		err := tx.NewSelect().Model(record).
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *identities) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	return a.UpdateRefreshTokenTx(ctx, a.db, id, token)
}

// UpdateRefreshTokenTx overwrites the persisted refresh token; nil
// clears it. Raw SQL so a NULL write actually lands.
func (a *identities) UpdateRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token *string) error {
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET
			"refresh_token" = ?,
			"updated_at" = ?
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, token, time.Now(), id).Exec(ctx)

	return err
}

func (a *identities) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordHashTx(ctx, a.db, id, passwordHash)
}

func (a *identities) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET
			"password_hash" = ?,
			"updated_at" = ?
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, passwordHash, time.Now(), id).Exec(ctx)

	return err
}

func (a *identities) UpdateProfile(ctx context.Context, id uuid.UUID, fields ProfileUpdate) (*Identity, error) {
	return a.UpdateProfileTx(ctx, a.db, id, fields)
}

func (a *identities) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fields ProfileUpdate) (*Identity, error) {
	record := &Identity{}
	record.ID = id
	record.FullName = strings.TrimSpace(fields.FullName)
	record.Email = normalizeEmail(fields.Email)

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *identities) UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (*Identity, error) {
	return a.UpdateAvatarTx(ctx, a.db, id, avatarURL)
}

func (a *identities) UpdateAvatarTx(ctx context.Context, tx bun.IDB, id uuid.UUID, avatarURL string) (*Identity, error) {
	record := &Identity{}
	record.ID = id
	record.AvatarURL = avatarURL

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func prepareIdentityDefaults(record *Identity) {
	if record == nil {
		return
	}

	record.Username = strings.ToLower(strings.TrimSpace(record.Username))
	record.Email = normalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type identifierOption struct {
	column string
	value  string
}

func resolveIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if _, err := mail.ParseAddress(trimmed); err == nil {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	return append(options, identifierOption{
		column: "username",
		value:  strings.ToLower(trimmed),
	})
}
