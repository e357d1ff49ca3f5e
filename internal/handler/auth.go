package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/middleware"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/repository"
)

// UserStore is the account persistence used by password sign-in.
type UserStore interface {
	Create(ctx context.Context, email, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// TokenStore persists refresh tokens by hash.
type TokenStore interface {
	StoreRefresh(ctx context.Context, s model.Session, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (model.Session, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForSubject(ctx context.Context, subject string) error
}

// AuthHandler bundles dependencies for auth endpoints.  Users and Tokens
// are nil when the service runs without a database: password accounts are
// then unavailable and sessions get no refresh token.
type AuthHandler struct {
	Issuer     *auth.Issuer
	Users      UserStore
	Tokens     TokenStore
	Google     *auth.GoogleProvider
	Allow      auth.AllowList
	BcryptCost int
	Log        *log.Logger
}

const oauthStateCookie = "recital_oauth_state"

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	Session    model.Session `json:"session"`
	Authorized bool          `json:"authorized"`
	Access     tokenPart     `json:"access"`
	Refresh    *tokenPart    `json:"refresh,omitempty"`
}

func userSubject(id uint64) string { return "user:" + strconv.FormatUint(id, 10) }

// issue signs an access token for s and, when a token store is configured,
// a refresh token.
func (h *AuthHandler) issue(ctx context.Context, s model.Session) (authResp, error) {
	access, err := h.Issuer.NewAccessToken(s)
	if err != nil {
		return authResp{}, err
	}
	resp := authResp{
		Session:    s,
		Authorized: h.Allow.Authorized(s),
		Access:     tokenPart{Token: access.Token, Expires: access.Exp},
	}
	if h.Tokens == nil {
		return resp, nil
	}
	refresh, err := h.Issuer.NewRefreshToken()
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, s, auth.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	resp.Refresh = &tokenPart{Token: refresh.Raw, Expires: refresh.Exp}
	return resp, nil
}

func (h *AuthHandler) respond(c echo.Context, status int, s model.Session) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	resp, err := h.issue(ctx, s)
	if err != nil {
		h.Log.Error("issue tokens failed", "subject", s.Subject, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(status, resp)
}

// Anonymous starts a session with a random subject and no email.
func (h *AuthHandler) Anonymous(c echo.Context) error {
	return h.respond(c, http.StatusCreated, model.Session{Subject: "anon:" + uuid.NewString(), Anonymous: true})
}

// Register creates a password account and returns tokens immediately.  The
// address is not verified, so the session never drives live status.
func (h *AuthHandler) Register(c echo.Context) error {
	if h.Users == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "accounts unavailable"})
	}
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	uid, err := h.Users.Create(ctx, req.Email, req.Password, h.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		h.Log.Error("create user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return h.respond(c, http.StatusCreated, model.Session{Subject: userSubject(uid), Email: req.Email})
}

// Login verifies a password and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	if h.Users == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "accounts unavailable"})
	}
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		h.Log.Error("load user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !u.IsActive || !auth.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.respond(c, http.StatusOK, model.Session{Subject: userSubject(u.ID), Email: u.Email})
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair for the same session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	if h.Tokens == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "refresh unavailable"})
	}
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := auth.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	s, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Warn("revoke rotated refresh token failed", "subject", s.Subject, "err", err)
	}
	return h.respond(c, http.StatusOK, s)
}

// Logout revokes one refresh token given in the body, or every refresh
// token of the bearer's session when the body has none.
func (h *AuthHandler) Logout(c echo.Context) error {
	if h.Tokens == nil {
		return c.NoContent(http.StatusNoContent)
	}
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if refreshToken != "" {
		hash := auth.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	if s, ok := middleware.SessionFrom(c); ok {
		if err := h.Tokens.RevokeAllForSubject(ctx, s.Subject); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// GoogleLogin redirects to Google's consent page.
func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	if h.Google == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "google sign-in disabled"})
	}
	state := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/v1/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.Google.AuthCodeURL(state))
}

// GoogleCallback completes the code flow and returns tokens for a session
// carrying the verified Google email.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	if h.Google == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "google sign-in disabled"})
	}
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != c.QueryParam("state") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid oauth state"})
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	id, err := h.Google.Identify(ctx, code)
	if err != nil {
		h.Log.Warn("google sign-in failed", "err", err)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "google sign-in failed"})
	}
	return h.respond(c, http.StatusOK, model.Session{Subject: "google:" + id.Subject, Email: id.Email, Verified: id.EmailVerified})
}
