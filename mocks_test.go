package identity_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/media"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// memStore is an in-memory Identities implementation backing the
// coordinator and transport tests. Methods outside the subset the
// engine touches come from the embedded nil interface and panic if
// reached.
type memStore struct {
	identity.Identities

	mu      sync.Mutex
	records map[uuid.UUID]*identity.Identity

	// failWrites makes every mutation return this error.
	failWrites error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]*identity.Identity)}
}

func cloneIdentity(record *identity.Identity) *identity.Identity {
	if record == nil {
		return nil
	}
	out := *record
	if record.RefreshToken != nil {
		token := *record.RefreshToken
		out.RefreshToken = &token
	}
	return &out
}

func (s *memStore) RegisterTx(ctx context.Context, tx bun.IDB, record *identity.Identity) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, s.failWrites
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Username = strings.ToLower(record.Username)
	record.Email = strings.ToLower(record.Email)

	s.records[record.ID] = cloneIdentity(record)
	return cloneIdentity(record), nil
}

func (s *memStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	record, ok := s.records[uid]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return cloneIdentity(record), nil
}

func (s *memStore) GetByUsernameOrEmail(ctx context.Context, identifier string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(identifier))
	for _, record := range s.records {
		if record.Username == needle || record.Email == needle {
			return cloneIdentity(record), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memStore) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	return s.UpdateRefreshTokenTx(ctx, nil, id, token)
}

func (s *memStore) UpdateRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}

	if record, ok := s.records[id]; ok {
		if token == nil {
			record.RefreshToken = nil
		} else {
			value := *token
			record.RefreshToken = &value
		}
	}
	return nil
}

func (s *memStore) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}

	if record, ok := s.records[id]; ok {
		record.PasswordHash = passwordHash
	}
	return nil
}

func (s *memStore) UpdateProfile(ctx context.Context, id uuid.UUID, fields identity.ProfileUpdate) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if v := strings.TrimSpace(fields.FullName); v != "" {
		record.FullName = v
	}
	if v := strings.ToLower(strings.TrimSpace(fields.Email)); v != "" {
		record.Email = v
	}
	return cloneIdentity(record), nil
}

func (s *memStore) UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	record.AvatarURL = avatarURL
	return cloneIdentity(record), nil
}

// get reads a stored record directly, bypassing the repository surface.
func (s *memStore) get(id uuid.UUID) *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.records[id])
}

// memManager adapts memStore to the RepositoryManager interface.
// Transactions degrade to plain calls; the store is a flat map.
type memManager struct {
	store *memStore
}

func newMemManager(store *memStore) *memManager {
	return &memManager{store: store}
}

func (m *memManager) Identities() identity.Identities { return m.store }

func (m *memManager) Validate() error { return nil }

func (m *memManager) MustValidate() {}

func (m *memManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// MockUploader implements media.Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, file media.File) (string, error) {
	args := m.Called(ctx, file)
	return args.String(0), args.Error(1)
}
