package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"app/internal/hash"
	"app/internal/logging"
	"app/internal/models"
	"app/internal/mykafka"
	"app/internal/tokens"
)

// RefreshCookie is the name of the HTTP-only cookie carrying the refresh
// token.
const RefreshCookie = "jwt"

// AuthHandler owns the login/refresh/logout/register flows. Access and
// RefreshAccess sign with the same access secret but may carry different
// lifetimes; Refresh signs with its own secret.
type AuthHandler struct {
	DB                 *gorm.DB
	AccessCodec        tokens.Codec
	RefreshAccessCodec tokens.Codec
	RefreshCodec       tokens.Codec
	Development        bool
	Producer           *mykafka.Producer
}

type credentialsRequest struct {
	User string `json:"user"`
	Pwd  string `json:"pwd"`
}

// CreateCookie builds the refresh cookie. Development relaxes the
// attributes so plain-HTTP local setups keep working; production requires
// Secure + SameSite=None for cross-site frontends.
func CreateCookie(name, value string, maxAge time.Duration, development bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !development,
		SameSite: http.SameSiteNoneMode,
	}
	if development {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return cookie
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, value string) {
	c.SetCookie(CreateCookie(RefreshCookie, value, h.RefreshCodec.TTL, h.Development))
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(CreateCookie(RefreshCookie, "", -time.Second, h.Development))
}

func (h *AuthHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka_publish_error", "error", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.User == "" || req.Pwd == "" {
		l.Warn("register_failed", "status", 400, "reason", "empty_fields")
		return echo.NewHTTPError(http.StatusBadRequest, "Username and password are required.")
	}

	var duplicate models.User
	if err := h.DB.Where("username = ?", req.User).First(&duplicate).Error; err == nil {
		l.Warn("register_failed", "status", 409, "reason", "user_exists")
		return echo.NewHTTPError(http.StatusConflict, "Username already exists.")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	pwHash, err := hash.HashPassword(req.Pwd)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "hash_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := models.User{
		Username:     req.User,
		PasswordHash: pwHash,
		Roles:        models.DeserializeRoles([]int{models.RoleUser}),
	}
	if err := h.DB.Create(&user).Error; err != nil {
		// Two racing registrations surface the unique constraint here.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.Warn("register_failed", "status", 409, "reason", "user_exists")
			return echo.NewHTTPError(http.StatusConflict, "Username already exists.")
		}
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, user.Username, map[string]interface{}{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	l.Info("register_successful", "username", user.Username)
	return c.JSON(http.StatusOK, echo.Map{
		"success": "New user " + user.Username + " created!",
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.User == "" || req.Pwd == "" {
		l.Warn("login_failed", "status", 400, "reason", "empty_fields")
		return echo.NewHTTPError(http.StatusBadRequest, "Username and password are required.")
	}

	// Unknown username and wrong password answer identically so the
	// endpoint cannot be used to enumerate accounts.
	var user models.User
	if err := h.DB.Where("username = ?", req.User).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown_user")
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
		}
		l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Pwd) {
		l.Warn("login_failed", "status", 401, "reason", "wrong_password")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	}

	roles := models.SerializeRoles(user.Roles)

	accessToken, err := h.AccessCodec.SignAccess(user.Username, roles)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "sign_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate authentication tokens")
	}
	refreshToken, err := h.RefreshCodec.SignRefresh(user.Username)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "sign_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate authentication tokens")
	}

	// Overwrites any prior value: one live session per account, last
	// writer wins. Must commit before the cookie and body are written.
	if err := h.DB.Model(&user).Update("refresh_token", refreshToken).Error; err != nil {
		l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user session")
	}

	h.setRefreshCookie(c, refreshToken)

	h.publish(c, user.Username, map[string]interface{}{
		"type":     "user_logged_in",
		"userID":   user.ID,
		"username": user.Username,
	})

	l.Info("login_successful", "username", user.Username)
	return c.JSON(http.StatusOK, echo.Map{
		"roles":       roles,
		"accessToken": accessToken,
	})
}

// Refresh exchanges a valid refresh cookie for a new access token. The
// stored refresh token is left untouched: repeated refreshes with the same
// cookie stay valid until logout, a new login or natural expiry.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "no_cookie")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh cookie missing")
	}

	// Logged-out, rotated and forged tokens all end up here; one outcome
	// for all of them.
	var user models.User
	if err := h.DB.Where("refresh_token = ?", cookie.Value).First(&user).Error; err != nil {
		l.Warn("refresh_failed", "status", 403, "reason", "token_not_found")
		return echo.NewHTTPError(http.StatusForbidden, "invalid refresh token")
	}

	claims, err := h.RefreshCodec.ParseRefresh(cookie.Value)
	if err != nil {
		l.Warn("refresh_failed", "status", 403, "reason", "decode_error")
		return echo.NewHTTPError(http.StatusForbidden, "invalid refresh token")
	}
	if claims.Username != user.Username {
		l.Warn("refresh_failed", "status", 403, "reason", "username_mismatch")
		return echo.NewHTTPError(http.StatusForbidden, "invalid refresh token")
	}

	roles := models.SerializeRoles(user.Roles)
	accessToken, err := h.RefreshAccessCodec.SignAccess(user.Username, roles)
	if err != nil {
		l.Error("refresh_failed", "status", 403, "reason", "sign_error", "error", err)
		return echo.NewHTTPError(http.StatusForbidden, "invalid refresh token")
	}

	l.Info("refresh_successful", "username", user.Username)
	return c.JSON(http.StatusOK, echo.Map{
		"roles":       roles,
		"accessToken": accessToken,
	})
}

// Logout never fails visibly. Store errors are logged and the cookie is
// cleared regardless.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	cookie, err := c.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		return c.NoContent(http.StatusNoContent)
	}

	var user models.User
	if err := h.DB.Where("refresh_token = ?", cookie.Value).First(&user).Error; err != nil {
		h.clearRefreshCookie(c)
		return c.NoContent(http.StatusNoContent)
	}

	if err := h.DB.Model(&user).Update("refresh_token", "").Error; err != nil {
		l.Error("logout_error", "reason", "db_error", "error", err)
	} else {
		h.publish(c, user.Username, map[string]interface{}{
			"type":     "user_logged_out",
			"userID":   user.ID,
			"username": user.Username,
		})
		l.Info("logout_successful", "username", user.Username)
	}

	h.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}
