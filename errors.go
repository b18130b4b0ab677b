package identity

import (
	"github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is returned when a login selector matches no record.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrIdentityConflict is returned when username or email is already taken.
var ErrIdentityConflict = errors.New("identity with that username or email already exists", errors.CategoryConflict).
	WithCode(errors.CodeConflict).
	WithTextCode("IDENTITY_CONFLICT")

// ErrMismatchedHashAndPassword is the single failure we surface for a
// wrong password, so callers cannot probe which part of the check failed.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("INVALID_CREDENTIALS")

// ErrTokenInvalid collapses malformed, badly signed, wrong-kind, and
// expired tokens into one outcome. Keeping these indistinguishable
// denies forgers an oracle.
var ErrTokenInvalid = errors.New("invalid or expired token", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("TOKEN_INVALID")

// ErrRefreshTokenMismatch is returned when a refresh token verifies but
// no longer matches the value persisted on the identity: it was rotated,
// revoked by logout, or superseded by a concurrent login.
var ErrRefreshTokenMismatch = errors.New("refresh token is expired or has been used", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("REFRESH_TOKEN_MISMATCH")

// ErrNoEmptyString rejects blank required inputs.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode("EMPTY_VALUE")

// ErrAvatarUploadFailed degrades a media collaborator failure into a
// client-facing validation error, per the registration contract.
var ErrAvatarUploadFailed = errors.New("avatar upload failed", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode("AVATAR_UPLOAD_FAILED")
