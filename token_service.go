package identity

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService mints and validates the access/refresh token pair. Each
// kind is signed with its own key so a refresh token can never pass as
// an access token even if both leak.
type TokenService struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a TokenService from the given config.
func NewTokenService(cfg *Config) *TokenService {
	return &TokenService{
		accessKey:  []byte(cfg.AccessSigningKey),
		refreshKey: []byte(cfg.RefreshSigningKey),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		issuer:     cfg.Issuer,
		audience:   jwt.ClaimStrings(cfg.Audience),
		logger:     defLogger{},
	}
}

// WithLogger overrides the default logger.
func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		ts.logger = logger
	}
	return ts
}

// IssueAccessToken mints a short-lived token carrying the identity's
// id, username, and email.
func (ts *TokenService) IssueAccessToken(identity *Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity is required", errors.CategoryBadInput)
	}

	claims := ts.baseClaims(identity.ID, TokenKindAccess, ts.accessTTL)
	claims.Username = identity.Username
	claims.Email = identity.Email

	return ts.signClaims(claims, ts.accessKey)
}

// IssueRefreshToken mints a long-lived token carrying the identity id
// only. The literal value must also be persisted on the identity before
// the session counts as established.
func (ts *TokenService) IssueRefreshToken(id uuid.UUID) (string, error) {
	if id == uuid.Nil {
		return "", errors.New("identity id is required", errors.CategoryBadInput)
	}
	return ts.signClaims(ts.baseClaims(id, TokenKindRefresh, ts.refreshTTL), ts.refreshKey)
}

// Validate parses and verifies a token of the given kind and returns
// its claims. Malformed tokens, bad signatures, kind mismatches, and
// expired tokens all collapse into ErrTokenInvalid; the caller decides
// the user-facing error.
func (ts *TokenService) Validate(tokenString string, kind TokenKind) (*SessionClaims, error) {
	key := ts.accessKey
	if kind == TokenKindRefresh {
		key = ts.refreshKey
	}

	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			ts.logger.Debug("TokenService validate rejected expired %s token", kind)
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode claims")
		return nil, ErrTokenInvalid
	}

	if claims.Kind != kind {
		ts.logger.Debug("TokenService validate rejected token kind: want %s got %s", kind, claims.Kind)
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// AccessTTL exposes the configured access-token lifetime, used by the
// transport layer to bound cookie expiry.
func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

func (ts *TokenService) baseClaims(id uuid.UUID, kind TokenKind, ttl time.Duration) *SessionClaims {
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   id.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:  id.String(),
		Kind: kind,
	}
	ensureTokenID(&claims.RegisteredClaims)
	return claims
}

func (ts *TokenService) signClaims(claims *SessionClaims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}
