package identity

import (
	"bytes"
	stderrors "errors"
	"io"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/media"
)

// HTTPControllerRoutes holds the path for each endpoint, relative to
// wherever the caller mounts the controller.
type HTTPControllerRoutes struct {
	Register        string
	Login           string
	Logout          string
	RefreshToken    string
	CurrentIdentity string
	ChangePassword  string
	UpdateProfile   string
	UpdateAvatar    string
}

// HTTPController is the fiber transport for the session coordinator.
type HTTPController struct {
	Logger      Logger
	Coordinator *SessionCoordinator
	Config      *Config
	Routes      *HTTPControllerRoutes
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = logger
		return c
	}
}

func WithControllerRoutes(routes *HTTPControllerRoutes) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Routes = routes
		return c
	}
}

func NewHTTPController(coordinator *SessionCoordinator, cfg *Config, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:      defLogger{},
		Coordinator: coordinator,
		Config:      cfg,
		Routes: &HTTPControllerRoutes{
			Register:        "/register",
			Login:           "/login",
			Logout:          "/logout",
			RefreshToken:    "/refresh-token",
			CurrentIdentity: "/current-user",
			ChangePassword:  "/change-password",
			UpdateProfile:   "/update-account",
			UpdateAvatar:    "/update-avatar",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Coordinator == nil {
		panic("Missing SessionCoordinator in identity controller...")
	}

	if c.Config == nil {
		panic("Missing Config in identity controller...")
	}

	return c
}

// RegisterRoutes mounts the controller on the given router. Routes that
// require an authenticated identity go through the gate.
func RegisterRoutes(app fiber.Router, controller *HTTPController, gate fiber.Handler) {
	app.Post(controller.Routes.Register, controller.Register)
	app.Post(controller.Routes.Login, controller.Login)
	app.Post(controller.Routes.RefreshToken, controller.RefreshToken)

	app.Post(controller.Routes.Logout, gate, controller.Logout)
	app.Get(controller.Routes.CurrentIdentity, gate, controller.CurrentIdentity)
	app.Patch(controller.Routes.ChangePassword, gate, controller.ChangePassword)
	app.Patch(controller.Routes.UpdateProfile, gate, controller.UpdateProfile)
	app.Patch(controller.Routes.UpdateAvatar, gate, controller.UpdateAvatar)
}

// RegisterRequest payload. The avatar and cover image travel as
// multipart file parts, not body fields.
type RegisterRequest struct {
	FullName string `form:"full_name" json:"full_name"`
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *HTTPController) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("Register parse payload: %v", err)
		return respond(c, fiber.StatusBadRequest, nil, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return respondError(c, validationError(err))
	}

	avatar, err := formFile(c, "avatar")
	if err != nil {
		return respond(c, fiber.StatusBadRequest, nil, "avatar image is required")
	}

	// optional; a missing part is fine
	cover, _ := formFile(c, "coverImage")

	created, err := a.Coordinator.Register(c.UserContext(), RegisterInput{
		FullName:   payload.FullName,
		Username:   payload.Username,
		Email:      payload.Email,
		Password:   payload.Password,
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		a.Logger.Error("Register failed: %v", err)
		return respondError(c, err)
	}

	return respond(c, fiber.StatusCreated, created, "identity registered successfully")
}

// LoginRequest payload. Username and email are alternatives; at least
// one must be present.
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns whichever selector the client sent.
func (r LoginRequest) GetIdentifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.By(func(any) error {
			if r.Username == "" && r.Email == "" {
				return stderrors.New("username or email is required")
			}
			return nil
		})),
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *HTTPController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("Login parse payload: %v", err)
		return respond(c, fiber.StatusBadRequest, nil, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return respondError(c, validationError(err))
	}

	tokens, err := a.Coordinator.Login(c.UserContext(), payload.GetIdentifier(), payload.Password)
	if err != nil {
		return respondError(c, err)
	}

	ts := a.Coordinator.TokenService()
	setSessionCookies(c, a.Config, tokens, ts.AccessTTL(), ts.RefreshTTL())

	return respond(c, fiber.StatusOK, tokens, "logged in successfully")
}

func (a *HTTPController) Logout(c *fiber.Ctx) error {
	record, err := IdentityFromCtx(c, a.Config.ContextKey)
	if err != nil {
		return respondError(c, err)
	}

	if err := a.Coordinator.Logout(c.UserContext(), record.ID); err != nil {
		return respondError(c, err)
	}

	clearSessionCookies(c, a.Config)

	return respond(c, fiber.StatusOK, nil, "logged out successfully")
}

// RefreshRequest payload, the body fallback when the cookie is absent.
type RefreshRequest struct {
	RefreshToken string `form:"refreshToken" json:"refreshToken"`
}

func (a *HTTPController) RefreshToken(c *fiber.Ctx) error {
	raw := c.Cookies(a.Config.RefreshCookieName)
	if raw == "" {
		payload := new(RefreshRequest)
		// tolerate an empty body; the coordinator rejects blank tokens
		if err := c.BodyParser(payload); err == nil {
			raw = payload.RefreshToken
		}
	}

	tokens, err := a.Coordinator.RefreshSession(c.UserContext(), raw)
	if err != nil {
		return respondError(c, err)
	}

	ts := a.Coordinator.TokenService()
	setSessionCookies(c, a.Config, tokens, ts.AccessTTL(), ts.RefreshTTL())

	return respond(c, fiber.StatusOK, tokens, "session refreshed successfully")
}

func (a *HTTPController) CurrentIdentity(c *fiber.Ctx) error {
	record, err := IdentityFromCtx(c, a.Config.ContextKey)
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, fiber.StatusOK, record, "current identity fetched successfully")
}

// ChangePasswordRequest payload
type ChangePasswordRequest struct {
	OldPassword string `form:"old_password" json:"old_password"`
	NewPassword string `form:"new_password" json:"new_password"`
}

// Validate will run validation rules
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

func (a *HTTPController) ChangePassword(c *fiber.Ctx) error {
	payload := new(ChangePasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("ChangePassword parse payload: %v", err)
		return respond(c, fiber.StatusBadRequest, nil, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return respondError(c, validationError(err))
	}

	record, err := IdentityFromCtx(c, a.Config.ContextKey)
	if err != nil {
		return respondError(c, err)
	}

	if err := a.Coordinator.ChangePassword(c.UserContext(), record.ID, payload.OldPassword, payload.NewPassword); err != nil {
		return respondError(c, err)
	}

	// outstanding refresh tokens died with the old password
	clearSessionCookies(c, a.Config)

	return respond(c, fiber.StatusOK, nil, "password changed successfully")
}

// UpdateProfileRequest payload
type UpdateProfileRequest struct {
	FullName string `form:"full_name" json:"full_name"`
	Email    string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Length(1, 200)),
		validation.Field(&r.Email, is.Email),
	)
}

func (a *HTTPController) UpdateProfile(c *fiber.Ctx) error {
	payload := new(UpdateProfileRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("UpdateProfile parse payload: %v", err)
		return respond(c, fiber.StatusBadRequest, nil, "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return respondError(c, validationError(err))
	}

	record, err := IdentityFromCtx(c, a.Config.ContextKey)
	if err != nil {
		return respondError(c, err)
	}

	updated, err := a.Coordinator.UpdateProfile(c.UserContext(), record.ID, ProfileUpdate{
		FullName: payload.FullName,
		Email:    payload.Email,
	})
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, fiber.StatusOK, updated, "account details updated successfully")
}

func (a *HTTPController) UpdateAvatar(c *fiber.Ctx) error {
	record, err := IdentityFromCtx(c, a.Config.ContextKey)
	if err != nil {
		return respondError(c, err)
	}

	avatar, err := formFile(c, "avatar")
	if err != nil {
		return respond(c, fiber.StatusBadRequest, nil, "avatar file is missing")
	}

	updated, err := a.Coordinator.UpdateAvatar(c.UserContext(), record.ID, avatar)
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, fiber.StatusOK, updated, "avatar updated successfully")
}

// formFile buffers a multipart file part. The body is already resident
// in memory under fiber, so copying here does not change the high-water
// mark.
func formFile(c *fiber.Ctx, name string) (*media.File, error) {
	fh, err := c.FormFile(name)
	if err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	return &media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Content:     bytes.NewReader(content),
	}, nil
}

func validationError(err error) error {
	return errors.Wrap(err, errors.CategoryValidation, err.Error()).
		WithCode(errors.CodeBadRequest).
		WithTextCode("VALIDATION_ERROR")
}
