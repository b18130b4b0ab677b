package identity

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/middleware/jwtware"
)

// APIResponse is the envelope every endpoint answers with, success or
// failure. StatusCode mirrors the HTTP status so clients reading the
// body alone see the same outcome.
type APIResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *fiber.Ctx, status int, data any, message string) error {
	return c.Status(status).JSON(APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	status, message := statusFromError(err)
	return respond(c, status, nil, message)
}

// statusFromError maps the error taxonomy onto HTTP statuses. Rich
// errors carry their own code; everything else is an internal failure
// and the message is kept generic so internals never leak.
func statusFromError(err error) (int, string) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return fiber.StatusInternalServerError, "internal server error"
	}

	if richErr.Code >= 400 {
		return richErr.Code, richErr.Message
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest, richErr.Message
	case errors.CategoryConflict:
		return fiber.StatusConflict, richErr.Message
	case errors.CategoryNotFound:
		return fiber.StatusNotFound, richErr.Message
	case errors.CategoryAuth, errors.CategoryAuthz:
		return fiber.StatusUnauthorized, richErr.Message
	case errors.CategoryOperation:
		return fiber.StatusServiceUnavailable, richErr.Message
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

// NewAccessGate builds the middleware protecting authenticated routes:
// it pulls the access token from the cookie or the Authorization
// header, verifies it through the coordinator, and stores the resolved
// identity under cfg.ContextKey.
func NewAccessGate(coordinator *SessionCoordinator, cfg *Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup: "cookie:" + cfg.AccessCookieName + ",header:" + fiber.HeaderAuthorization,
		ContextKey:  cfg.ContextKey,
		Verify: func(ctx context.Context, token string) (any, error) {
			return coordinator.VerifyAccessForRequest(ctx, token)
		},
		ContextEnricher: func(ctx context.Context, verified any) context.Context {
			if record, ok := verified.(*Identity); ok {
				return WithContext(ctx, record)
			}
			return ctx
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if _, ok := err.(*errors.Error); ok {
				return respondError(c, err)
			}
			return respond(c, fiber.StatusUnauthorized, nil, "unauthorized request")
		},
	})
}

// IdentityFromCtx retrieves the identity the access gate stored on the
// request.
func IdentityFromCtx(c *fiber.Ctx, key string) (*Identity, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrTokenInvalid
	}

	record, ok := raw.(*Identity)
	if !ok || record == nil {
		return nil, ErrTokenInvalid
	}

	return record, nil
}

func setSessionCookies(c *fiber.Ctx, cfg *Config, tokens *SessionTokens, accessTTL, refreshTTL time.Duration) {
	cookieSet(c, cfg, cfg.AccessCookieName, tokens.AccessToken, accessTTL)
	cookieSet(c, cfg, cfg.RefreshCookieName, tokens.RefreshToken, refreshTTL)
}

func clearSessionCookies(c *fiber.Ctx, cfg *Config) {
	cookieDel(c, cfg, cfg.AccessCookieName)
	cookieDel(c, cfg, cfg.RefreshCookieName)
}

func cookieSet(c *fiber.Ctx, cfg *Config, name, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
	})
}

func cookieDel(c *fiber.Ctx, cfg *Config, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
	})
}
