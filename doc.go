// Package identity provides a credential and session-management engine:
// password verification, dual JWT issuance (short-lived access tokens,
// long-lived refresh tokens), refresh rotation with server-side
// persistence, and the verification gate protected endpoints rely on.
//
// Session lifecycle:
//   - Login verifies credentials, mints an access/refresh pair, and
//     persists the refresh token on the Identity record. A session is
//     active while that persisted value matches the token the client
//     presents.
//   - RefreshSession rotates the pair on every redemption; a superseded
//     refresh token fails even when cryptographically well formed, which
//     bounds a leaked token to a single use.
//   - Logout clears the persisted value, invalidating every refresh
//     token previously issued for that identity.
//
// Transport:
//   - HTTPController exposes the engine over Fiber with an httpOnly
//     cookie pair plus a JSON envelope, and middleware/jwtware gates
//     protected routes. Media uploads (avatars, cover images) go through
//     the media.Uploader collaborator and never block authentication.
package identity
