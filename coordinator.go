package identity

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/media"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterInput carries the fields of a registration request. Avatar is
// mandatory; CoverImage may be nil.
type RegisterInput struct {
	FullName   string
	Username   string
	Email      string
	Password   string
	Avatar     *media.File
	CoverImage *media.File
}

// SessionTokens is the outcome of establishing a session: the public
// projection of the identity plus the freshly minted pair. Field names
// match the cookie names the transport sets.
type SessionTokens struct {
	Identity     *Identity `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

// SessionCoordinator drives the credential and session lifecycle:
// registration, login, refresh rotation, logout, password change, and
// access verification. It owns the ordering invariants; the repository,
// token service, and media uploader are collaborators.
type SessionCoordinator struct {
	repo     RepositoryManager
	tokens   *TokenService
	uploader media.Uploader
	logger   Logger
}

// NewSessionCoordinator wires the coordinator. The uploader may be nil
// when the deployment has no media host; registration then rejects
// avatar uploads.
func NewSessionCoordinator(repo RepositoryManager, tokens *TokenService, uploader media.Uploader) *SessionCoordinator {
	return &SessionCoordinator{
		repo:     repo,
		tokens:   tokens,
		uploader: uploader,
		logger:   defLogger{},
	}
}

// WithLogger overrides the default logger.
func (s *SessionCoordinator) WithLogger(logger Logger) *SessionCoordinator {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// TokenService exposes the underlying token service, used by the
// transport layer for cookie TTLs.
func (s *SessionCoordinator) TokenService() *TokenService {
	return s.tokens
}

// Register creates a new identity. Username and email are checked for
// conflicts before the avatar (mandatory) and cover image (optional)
// are pushed to the media host; the record is created inside a
// transaction and re-read before being returned as a projection.
func (s *SessionCoordinator) Register(ctx context.Context, input RegisterInput) (*Identity, error) {
	input.FullName = strings.TrimSpace(input.FullName)
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = normalizeEmail(input.Email)

	for field, value := range map[string]string{
		"full_name": input.FullName,
		"username":  input.Username,
		"email":     input.Email,
		"password":  input.Password,
	} {
		if value == "" {
			return nil, errors.New(field+" is required", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode("MISSING_FIELD").
				WithMetadata(map[string]any{"field": field})
		}
	}

	if err := s.ensureAvailable(ctx, input.Username, input.Email); err != nil {
		return nil, err
	}

	if input.Avatar == nil {
		return nil, errors.New("avatar image is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("MISSING_AVATAR")
	}

	avatarURL, err := s.uploadFile(ctx, input.Avatar)
	if err != nil {
		s.logger.Error("Register avatar upload failed: %v", err)
		return nil, ErrAvatarUploadFailed
	}

	coverURL := ""
	if input.CoverImage != nil {
		if coverURL, err = s.uploadFile(ctx, input.CoverImage); err != nil {
			// cover art is decoration; a failed upload does not sink
			// the registration
			s.logger.Error("Register cover image upload failed: %v", err)
			coverURL = ""
		}
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	record := &Identity{
		FullName:      input.FullName,
		Username:      input.Username,
		Email:         input.Email,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  hash,
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Identities().RegisterTx(ctx, tx, record)
		if err != nil {
			return err
		}
		record = created
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create identity")
	}

	created, err := s.repo.Identities().GetByID(ctx, record.ID.String())
	if err != nil {
		s.logger.Error("Register could not read back identity %s: %v", record.ID, err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "something went wrong while registering")
	}

	return created.Projection(), nil
}

// Login verifies the password for the identity matching the selector
// (username or email) and establishes a session: the refresh token is
// persisted before the pair is handed out.
func (s *SessionCoordinator) Login(ctx context.Context, identifier, password string) (*SessionTokens, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, errors.New("username or email is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("MISSING_IDENTIFIER")
	}

	record, err := s.repo.Identities().GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity")
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		s.logger.Debug("Login password mismatch for identity %s", record.ID)
		return nil, err
	}

	return s.establishSession(ctx, record)
}

// Logout drops the persisted refresh token, invalidating any
// outstanding refresh token for the identity. Calling it without an
// active session is a no-op.
func (s *SessionCoordinator) Logout(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("identity id is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	if err := s.repo.Identities().UpdateRefreshToken(ctx, id, nil); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear session")
	}

	return nil
}

// RefreshSession redeems a refresh token for a new pair. The token must
// verify against the refresh key AND literally match the value
// persisted on the identity; redemption rotates both, so each refresh
// token works at most once.
func (s *SessionCoordinator) RefreshSession(ctx context.Context, raw string) (*SessionTokens, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := s.tokens.Validate(raw, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	id, err := claims.IdentityID()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	record, err := s.repo.Identities().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity")
	}

	if !record.HasActiveSession() ||
		subtle.ConstantTimeCompare([]byte(raw), []byte(*record.RefreshToken)) != 1 {
		s.logger.Debug("RefreshSession token mismatch for identity %s", record.ID)
		return nil, ErrRefreshTokenMismatch
	}

	return s.establishSession(ctx, record)
}

// ChangePassword re-verifies the current password before storing the
// new hash. The persisted refresh token is cleared in the same
// transaction, so outstanding sessions cannot outlive the credential
// they were minted under.
func (s *SessionCoordinator) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrNoEmptyString
	}

	record, err := s.repo.Identities().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up identity")
	}

	if err := ComparePasswordAndHash(oldPassword, record.PasswordHash); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Identities().UpdatePasswordHashTx(ctx, tx, record.ID, hash); err != nil {
			return err
		}
		return s.repo.Identities().UpdateRefreshTokenTx(ctx, tx, record.ID, nil)
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update password")
	}

	return nil
}

// VerifyAccessForRequest is the gate for protected operations: it
// validates the access token and resolves the identity it names. Any
// failure collapses into the single invalid-token outcome.
func (s *SessionCoordinator) VerifyAccessForRequest(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.tokens.Validate(raw, TokenKindAccess)
	if err != nil {
		return nil, err
	}

	id, err := claims.IdentityID()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	record, err := s.repo.Identities().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity")
	}

	return record.Projection(), nil
}

// CurrentIdentity returns the public projection for an authenticated id.
func (s *SessionCoordinator) CurrentIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	record, err := s.repo.Identities().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up identity")
	}
	return record.Projection(), nil
}

// UpdateProfile updates the mutable profile fields. Blank fields are
// left as they are; a request with nothing to change is rejected.
func (s *SessionCoordinator) UpdateProfile(ctx context.Context, id uuid.UUID, fields ProfileUpdate) (*Identity, error) {
	if fields.isZero() {
		return nil, errors.New("at least one profile field is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("EMPTY_UPDATE")
	}

	record, err := s.repo.Identities().UpdateProfile(ctx, id, fields)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update profile")
	}

	return record.Projection(), nil
}

// UpdateAvatar uploads a replacement avatar and stores its URL.
func (s *SessionCoordinator) UpdateAvatar(ctx context.Context, id uuid.UUID, file *media.File) (*Identity, error) {
	if file == nil {
		return nil, errors.New("avatar file is missing", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode("MISSING_AVATAR")
	}

	avatarURL, err := s.uploadFile(ctx, file)
	if err != nil {
		s.logger.Error("UpdateAvatar upload failed: %v", err)
		return nil, ErrAvatarUploadFailed
	}

	record, err := s.repo.Identities().UpdateAvatar(ctx, id, avatarURL)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update avatar")
	}

	return record.Projection(), nil
}

// establishSession mints a fresh pair and persists the refresh token.
// The session only counts once the store write lands; a pair whose
// persistence failed is never handed out.
func (s *SessionCoordinator) establishSession(ctx context.Context, record *Identity) (*SessionTokens, error) {
	accessToken, err := s.tokens.IssueAccessToken(record)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue access token")
	}

	refreshToken, err := s.tokens.IssueRefreshToken(record.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue refresh token")
	}

	if err := s.repo.Identities().UpdateRefreshToken(ctx, record.ID, &refreshToken); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist session")
	}

	return &SessionTokens{
		Identity:     record.Projection(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *SessionCoordinator) ensureAvailable(ctx context.Context, username, email string) error {
	for _, selector := range []string{username, email} {
		_, err := s.repo.Identities().GetByUsernameOrEmail(ctx, selector)
		if err == nil {
			return ErrIdentityConflict
		}
		if !repository.IsRecordNotFound(err) && !errors.IsNotFound(err) {
			return errors.Wrap(err, errors.CategoryInternal, "failed to check identity availability")
		}
	}
	return nil
}

func (s *SessionCoordinator) uploadFile(ctx context.Context, file *media.File) (string, error) {
	if s.uploader == nil {
		return "", errors.New("no media uploader configured", errors.CategoryInternal)
	}
	return s.uploader.Upload(ctx, *file)
}
