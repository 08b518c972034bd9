package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"app/internal/models"
	"app/internal/mykafka"
	"app/internal/tokens"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Employee{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return db
}

func newAuthHandler(t *testing.T) *AuthHandler {
	return &AuthHandler{
		DB:                 initTestDB(t),
		AccessCodec:        tokens.New("access_secret", 15*time.Minute),
		RefreshAccessCodec: tokens.New("access_secret", 15*time.Minute),
		RefreshCodec:       tokens.New("refresh_secret", 24*time.Hour),
		Development:        true,
		Producer:           &mykafka.Producer{},
	}
}

func doJSONRequest(t *testing.T, e *echo.Echo, method, path string, body interface{}, cookies ...*http.Cookie) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, c
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func registerUser(t *testing.T, h *AuthHandler, username, password string) {
	t.Helper()
	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/register", map[string]string{"user": username, "pwd": password})
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func loginUser(t *testing.T, h *AuthHandler, username, password string) (string, *http.Cookie) {
	t.Helper()
	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": username, "pwd": password})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)

	cookie := responseCookie(t, rec, RefreshCookie)
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	return resp.AccessToken, cookie
}

func httpError(t *testing.T, err error) *echo.HTTPError {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	return he
}

func TestRegister(t *testing.T) {
	h := newAuthHandler(t)
	e := echo.New()

	rec, c := doJSONRequest(t, e, http.MethodPost, "/register", map[string]string{"user": "alice", "pwd": "hunter2"})
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "New user alice created!", resp["success"])

	var user models.User
	require.NoError(t, h.DB.Where("username = ?", "alice").First(&user).Error)
	require.NotEqual(t, "hunter2", user.PasswordHash)
	require.Equal(t, []int{models.RoleUser}, models.SerializeRoles(user.Roles))
}

func TestRegisterDuplicate(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/register", map[string]string{"user": "alice", "pwd": "other"})
	he := httpError(t, h.Register(c))
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRegisterEmptyFields(t *testing.T) {
	h := newAuthHandler(t)
	e := echo.New()

	for _, body := range []map[string]string{
		{"user": "", "pwd": "hunter2"},
		{"user": "alice", "pwd": ""},
		{},
	} {
		_, c := doJSONRequest(t, e, http.MethodPost, "/register", body)
		he := httpError(t, h.Register(c))
		require.Equal(t, http.StatusBadRequest, he.Code)
	}
}

func TestLogin(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": "alice", "pwd": "hunter2"})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Roles       []int  `json:"roles"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []int{models.RoleUser}, resp.Roles)

	claims, err := h.AccessCodec.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.UserInfo.Username)
	require.Equal(t, []int{models.RoleUser}, claims.UserInfo.Roles)

	cookie := responseCookie(t, rec, RefreshCookie)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.False(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)

	// the delivered cookie is the persisted session token
	var user models.User
	require.NoError(t, h.DB.Where("username = ?", "alice").First(&user).Error)
	require.Equal(t, cookie.Value, user.RefreshToken)
}

func TestLoginProductionCookieAttributes(t *testing.T) {
	h := newAuthHandler(t)
	h.Development = false
	registerUser(t, h, "alice", "hunter2")

	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": "alice", "pwd": "hunter2"})
	require.NoError(t, h.Login(c))

	cookie := responseCookie(t, rec, RefreshCookie)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
}

func TestLoginEmptyFields(t *testing.T) {
	h := newAuthHandler(t)
	e := echo.New()

	_, c := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": "alice"})
	he := httpError(t, h.Login(c))
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestLoginBadCredentialIndistinguishable(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")
	e := echo.New()

	_, cUnknown := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": "nobody", "pwd": "hunter2"})
	heUnknown := httpError(t, h.Login(cUnknown))

	_, cWrongPwd := doJSONRequest(t, e, http.MethodPost, "/auth", map[string]string{"user": "alice", "pwd": "wrong"})
	heWrongPwd := httpError(t, h.Login(cWrongPwd))

	require.Equal(t, http.StatusUnauthorized, heUnknown.Code)
	require.Equal(t, heUnknown.Code, heWrongPwd.Code)
	require.Equal(t, heUnknown.Message, heWrongPwd.Message)
}

func TestRefresh(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")
	_, cookie := loginUser(t, h, "alice", "hunter2")

	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, cookie)
	require.NoError(t, h.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Roles       []int  `json:"roles"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []int{models.RoleUser}, resp.Roles)

	claims, err := h.AccessCodec.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.UserInfo.Username)

	// refresh is read-only against the stored token: same cookie works again
	rec2, c2 := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, cookie)
	require.NoError(t, h.Refresh(c2))
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestRefreshMissingCookie(t *testing.T) {
	h := newAuthHandler(t)
	e := echo.New()

	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil)
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRefreshUnknownToken(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	raw, err := h.RefreshCodec.SignRefresh("alice")
	require.NoError(t, err)

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, &http.Cookie{Name: RefreshCookie, Value: raw})
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestRefreshWrongSecret(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	forged, err := tokens.New("wrong_secret", 24*time.Hour).SignRefresh("alice")
	require.NoError(t, err)
	require.NoError(t, h.DB.Model(&models.User{}).Where("username = ?", "alice").
		Update("refresh_token", forged).Error)

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, &http.Cookie{Name: RefreshCookie, Value: forged})
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestRefreshUsernameMismatch(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	// correctly signed for another identity but stored on alice's account
	stray, err := h.RefreshCodec.SignRefresh("bob")
	require.NoError(t, err)
	require.NoError(t, h.DB.Model(&models.User{}).Where("username = ?", "alice").
		Update("refresh_token", stray).Error)

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, &http.Cookie{Name: RefreshCookie, Value: stray})
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestRefreshExpiredToken(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	expired, err := tokens.New("refresh_secret", -time.Minute).SignRefresh("alice")
	require.NoError(t, err)
	require.NoError(t, h.DB.Model(&models.User{}).Where("username = ?", "alice").
		Update("refresh_token", expired).Error)

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, &http.Cookie{Name: RefreshCookie, Value: expired})
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestSecondLoginInvalidatesFirstSession(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")

	_, first := loginUser(t, h, "alice", "hunter2")
	// claim timestamps have second precision; step past them so the
	// second login mints a distinct token
	time.Sleep(time.Second)
	_, second := loginUser(t, h, "alice", "hunter2")
	require.NotEqual(t, first.Value, second.Value)

	e := echo.New()
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, first)
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)

	rec2, c2 := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, second)
	require.NoError(t, h.Refresh(c2))
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestLogout(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")
	_, cookie := loginUser(t, h, "alice", "hunter2")

	e := echo.New()
	rec, c := doJSONRequest(t, e, http.MethodPost, "/logout", nil, cookie)
	require.NoError(t, h.Logout(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	cleared := responseCookie(t, rec, RefreshCookie)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	var user models.User
	require.NoError(t, h.DB.Where("username = ?", "alice").First(&user).Error)
	require.Empty(t, user.RefreshToken)
}

func TestLogoutIdempotent(t *testing.T) {
	h := newAuthHandler(t)
	registerUser(t, h, "alice", "hunter2")
	_, cookie := loginUser(t, h, "alice", "hunter2")
	e := echo.New()

	for i := 0; i < 2; i++ {
		rec, c := doJSONRequest(t, e, http.MethodPost, "/logout", nil, cookie)
		require.NoError(t, h.Logout(c))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	// the artifact is dead afterwards
	_, c := doJSONRequest(t, e, http.MethodPost, "/refresh", nil, cookie)
	he := httpError(t, h.Refresh(c))
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestLogoutWithoutCookie(t *testing.T) {
	h := newAuthHandler(t)
	e := echo.New()

	rec, c := doJSONRequest(t, e, http.MethodPost, "/logout", nil)
	require.NoError(t, h.Logout(c))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
