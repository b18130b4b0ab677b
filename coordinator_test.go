package identity_test

import (
	"context"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/media"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(uploader media.Uploader) (*identity.SessionCoordinator, *memStore) {
	store := newMemStore()
	coordinator := identity.NewSessionCoordinator(
		newMemManager(store),
		identity.NewTokenService(testConfig()),
		uploader,
	)
	return coordinator, store
}

func staticUploader(url string) media.Uploader {
	return media.UploaderFunc(func(ctx context.Context, file media.File) (string, error) {
		return url, nil
	})
}

func seedIdentity(t *testing.T, store *memStore, username, email, password string) *identity.Identity {
	t.Helper()

	hash, err := identity.HashPassword(password)
	require.NoError(t, err)

	record, err := store.RegisterTx(context.Background(), nil, &identity.Identity{
		FullName:     "Seeded User",
		Username:     username,
		Email:        email,
		AvatarURL:    "https://cdn.example.com/avatar.png",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return record
}

func avatarFile() *media.File {
	return &media.File{
		Name:        "avatar.png",
		ContentType: "image/png",
		Content:     strings.NewReader("png-bytes"),
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates identity with uploaded media", func(t *testing.T) {
		uploader := new(MockUploader)
		uploader.On("Upload", mock.Anything, mock.Anything).
			Return("https://cdn.example.com/a.png", nil).Twice()

		coordinator, store := newTestCoordinator(uploader)

		created, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName:   "Jamie Vardy",
			Username:   "Jamie",
			Email:      "Jamie@Example.com",
			Password:   "superSecret123",
			Avatar:     avatarFile(),
			CoverImage: &media.File{Name: "cover.png", Content: strings.NewReader("cover")},
		})
		require.NoError(t, err)

		assert.Equal(t, "jamie", created.Username)
		assert.Equal(t, "jamie@example.com", created.Email)
		assert.Equal(t, "https://cdn.example.com/a.png", created.AvatarURL)
		assert.Empty(t, created.PasswordHash)
		assert.Nil(t, created.RefreshToken)

		stored := store.get(created.ID)
		require.NotNil(t, stored)
		assert.NoError(t, identity.ComparePasswordAndHash("superSecret123", stored.PasswordHash))

		uploader.AssertExpectations(t)
	})

	t.Run("rejects blank required fields", func(t *testing.T) {
		coordinator, _ := newTestCoordinator(staticUploader("https://cdn.example.com/a.png"))

		_, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName: "  ",
			Username: "someone",
			Email:    "someone@example.com",
			Password: "superSecret123",
			Avatar:   avatarFile(),
		})
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	})

	t.Run("rejects duplicate username regardless of case", func(t *testing.T) {
		coordinator, store := newTestCoordinator(staticUploader("https://cdn.example.com/a.png"))
		seedIdentity(t, store, "taken", "taken@example.com", "password123")

		_, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName: "Someone Else",
			Username: "TAKEN",
			Email:    "other@example.com",
			Password: "superSecret123",
			Avatar:   avatarFile(),
		})
		assert.Equal(t, identity.ErrIdentityConflict, err)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		coordinator, store := newTestCoordinator(staticUploader("https://cdn.example.com/a.png"))
		seedIdentity(t, store, "original", "shared@example.com", "password123")

		_, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName: "Someone Else",
			Username: "different",
			Email:    "Shared@Example.com",
			Password: "superSecret123",
			Avatar:   avatarFile(),
		})
		assert.Equal(t, identity.ErrIdentityConflict, err)
	})

	t.Run("requires an avatar", func(t *testing.T) {
		coordinator, _ := newTestCoordinator(staticUploader("https://cdn.example.com/a.png"))

		_, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName: "No Avatar",
			Username: "noavatar",
			Email:    "noavatar@example.com",
			Password: "superSecret123",
		})
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	})

	t.Run("avatar upload failure sinks the registration", func(t *testing.T) {
		uploader := media.UploaderFunc(func(ctx context.Context, file media.File) (string, error) {
			return "", assert.AnError
		})
		coordinator, _ := newTestCoordinator(uploader)

		_, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName: "Upload Fails",
			Username: "uploadfails",
			Email:    "uploadfails@example.com",
			Password: "superSecret123",
			Avatar:   avatarFile(),
		})
		assert.Equal(t, identity.ErrAvatarUploadFailed, err)
	})

	t.Run("cover upload failure is tolerated", func(t *testing.T) {
		uploader := new(MockUploader)
		uploader.On("Upload", mock.Anything, mock.MatchedBy(func(f media.File) bool {
			return f.Name == "avatar.png"
		})).Return("https://cdn.example.com/a.png", nil).Once()
		uploader.On("Upload", mock.Anything, mock.MatchedBy(func(f media.File) bool {
			return f.Name == "cover.png"
		})).Return("", assert.AnError).Once()

		coordinator, _ := newTestCoordinator(uploader)

		created, err := coordinator.Register(ctx, identity.RegisterInput{
			FullName:   "Cover Fails",
			Username:   "coverfails",
			Email:      "coverfails@example.com",
			Password:   "superSecret123",
			Avatar:     avatarFile(),
			CoverImage: &media.File{Name: "cover.png", Content: strings.NewReader("cover")},
		})
		require.NoError(t, err)
		assert.Empty(t, created.CoverImageURL)

		uploader.AssertExpectations(t)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "vardy", "vardy@example.com", "password123")

	t.Run("by username", func(t *testing.T) {
		tokens, err := coordinator.Login(ctx, "vardy", "password123")
		require.NoError(t, err)

		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
		assert.NotEqual(t, tokens.AccessToken, tokens.RefreshToken)
		assert.Empty(t, tokens.Identity.PasswordHash)

		stored := store.get(record.ID)
		require.True(t, stored.HasActiveSession())
		assert.Equal(t, tokens.RefreshToken, *stored.RefreshToken)
	})

	t.Run("by email", func(t *testing.T) {
		tokens, err := coordinator.Login(ctx, "vardy@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, record.ID, tokens.Identity.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := coordinator.Login(ctx, "vardy", "not-the-password")
		assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := coordinator.Login(ctx, "nobody", "password123")
		assert.Equal(t, identity.ErrIdentityNotFound, err)
	})

	t.Run("blank identifier", func(t *testing.T) {
		_, err := coordinator.Login(ctx, "   ", "password123")
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	})

	t.Run("concurrent login supersedes the previous session", func(t *testing.T) {
		first, err := coordinator.Login(ctx, "vardy", "password123")
		require.NoError(t, err)

		_, err = coordinator.Login(ctx, "vardy", "password123")
		require.NoError(t, err)

		_, err = coordinator.RefreshSession(ctx, first.RefreshToken)
		assert.Equal(t, identity.ErrRefreshTokenMismatch, err)
	})
}

func TestRefreshSessionRotation(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "rotator", "rotator@example.com", "password123")

	tokens, err := coordinator.Login(ctx, "rotator", "password123")
	require.NoError(t, err)

	rotated, err := coordinator.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, record.ID, rotated.Identity.ID)

	// the redeemed token is spent
	_, err = coordinator.RefreshSession(ctx, tokens.RefreshToken)
	assert.Equal(t, identity.ErrRefreshTokenMismatch, err)

	// the rotated token still works
	_, err = coordinator.RefreshSession(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshSessionRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	seedIdentity(t, store, "victim", "victim@example.com", "password123")

	t.Run("blank token", func(t *testing.T) {
		_, err := coordinator.RefreshSession(ctx, "")
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		tokens, err := coordinator.Login(ctx, "victim", "password123")
		require.NoError(t, err)

		_, err = coordinator.RefreshSession(ctx, tokens.AccessToken)
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})

	t.Run("token for a vanished identity", func(t *testing.T) {
		ts := identity.NewTokenService(testConfig())
		token, err := ts.IssueRefreshToken(uuid.New())
		require.NoError(t, err)

		_, err = coordinator.RefreshSession(ctx, token)
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "leaver", "leaver@example.com", "password123")

	tokens, err := coordinator.Login(ctx, "leaver", "password123")
	require.NoError(t, err)

	require.NoError(t, coordinator.Logout(ctx, record.ID))
	assert.False(t, store.get(record.ID).HasActiveSession())

	// an invalidated refresh token can no longer be redeemed
	_, err = coordinator.RefreshSession(ctx, tokens.RefreshToken)
	assert.Equal(t, identity.ErrRefreshTokenMismatch, err)

	// logging out twice is fine
	assert.NoError(t, coordinator.Logout(ctx, record.ID))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "changer", "changer@example.com", "oldPassword123")

	t.Run("wrong current password", func(t *testing.T) {
		err := coordinator.ChangePassword(ctx, record.ID, "guess", "newPassword456")
		assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)
	})

	t.Run("rotates the credential and kills the session", func(t *testing.T) {
		tokens, err := coordinator.Login(ctx, "changer", "oldPassword123")
		require.NoError(t, err)

		require.NoError(t, coordinator.ChangePassword(ctx, record.ID, "oldPassword123", "newPassword456"))

		_, err = coordinator.Login(ctx, "changer", "oldPassword123")
		assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)

		_, err = coordinator.RefreshSession(ctx, tokens.RefreshToken)
		assert.Equal(t, identity.ErrRefreshTokenMismatch, err)

		_, err = coordinator.Login(ctx, "changer", "newPassword456")
		assert.NoError(t, err)
	})

	t.Run("unknown identity", func(t *testing.T) {
		err := coordinator.ChangePassword(ctx, uuid.New(), "whatever", "newPassword456")
		assert.Equal(t, identity.ErrIdentityNotFound, err)
	})
}

func TestVerifyAccessForRequest(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "gated", "gated@example.com", "password123")

	tokens, err := coordinator.Login(ctx, "gated", "password123")
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		got, err := coordinator.VerifyAccessForRequest(ctx, tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
		assert.Empty(t, got.PasswordHash)
		assert.Nil(t, got.RefreshToken)
	})

	t.Run("refresh token is rejected at the gate", func(t *testing.T) {
		_, err := coordinator.VerifyAccessForRequest(ctx, tokens.RefreshToken)
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := coordinator.VerifyAccessForRequest(ctx, "garbage")
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})

	t.Run("token for a vanished identity", func(t *testing.T) {
		ts := identity.NewTokenService(testConfig())
		ghost := &identity.Identity{ID: uuid.New(), Username: "ghost", Email: "ghost@example.com"}

		token, err := ts.IssueAccessToken(ghost)
		require.NoError(t, err)

		_, err = coordinator.VerifyAccessForRequest(ctx, token)
		assert.Equal(t, identity.ErrTokenInvalid, err)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(nil)
	record := seedIdentity(t, store, "profiled", "profiled@example.com", "password123")

	t.Run("updates the given fields", func(t *testing.T) {
		updated, err := coordinator.UpdateProfile(ctx, record.ID, identity.ProfileUpdate{
			FullName: "New Name",
		})
		require.NoError(t, err)
		assert.Equal(t, "New Name", updated.FullName)
		assert.Equal(t, "profiled@example.com", updated.Email)
	})

	t.Run("rejects an empty update", func(t *testing.T) {
		_, err := coordinator.UpdateProfile(ctx, record.ID, identity.ProfileUpdate{})
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := coordinator.UpdateProfile(ctx, uuid.New(), identity.ProfileUpdate{FullName: "X"})
		assert.Equal(t, identity.ErrIdentityNotFound, err)
	})
}

func TestUpdateAvatar(t *testing.T) {
	ctx := context.Background()
	coordinator, store := newTestCoordinator(staticUploader("https://cdn.example.com/new.png"))
	record := seedIdentity(t, store, "pictured", "pictured@example.com", "password123")

	updated, err := coordinator.UpdateAvatar(ctx, record.ID, avatarFile())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/new.png", updated.AvatarURL)

	_, err = coordinator.UpdateAvatar(ctx, record.ID, nil)
	assert.Error(t, err)
}

// Full lifecycle: register, log in, rotate, replay.
func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	coordinator, _ := newTestCoordinator(staticUploader("https://cdn.example.com/a.png"))

	created, err := coordinator.Register(ctx, identity.RegisterInput{
		FullName: "Life Cycle",
		Username: "lifecycle",
		Email:    "lifecycle@example.com",
		Password: "superSecret123",
		Avatar:   avatarFile(),
	})
	require.NoError(t, err)

	tokens, err := coordinator.Login(ctx, "lifecycle@example.com", "superSecret123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, tokens.Identity.ID)

	gateIdentity, err := coordinator.VerifyAccessForRequest(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, gateIdentity.ID)

	rotated, err := coordinator.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)

	_, err = coordinator.RefreshSession(ctx, tokens.RefreshToken)
	assert.Equal(t, identity.ErrRefreshTokenMismatch, err)

	require.NoError(t, coordinator.Logout(ctx, created.ID))

	_, err = coordinator.RefreshSession(ctx, rotated.RefreshToken)
	assert.Equal(t, identity.ErrRefreshTokenMismatch, err)
}
