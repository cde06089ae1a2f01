package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"saas-billing/internal/domain/auth"
	"saas-billing/internal/middleware"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.LoginResponse), args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.LoginResponse), args.Error(1)
}

func (m *mockAuth) Me(ctx context.Context, userID string) (*auth.UserInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.UserInfo), args.Error(1)
}

func (m *mockAuth) Logout(ctx context.Context, claims *jwt.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

type stubTokens map[string]*jwt.Claims

func (s stubTokens) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

var userClaims = &jwt.Claims{UserID: "u1", Email: "jane@example.com", Role: "USER"}

func newRouter(svc *mockAuth, secure bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(svc, secure, zap.NewNop())
	mw := middleware.NewAuthMiddleware(stubTokens{"tok": userClaims}, zap.NewNop())

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", mw.Auth(), h.Logout)
	r.GET("/auth/me", mw.Auth(), h.Me)
	return r
}

func do(r *gin.Engine, method, path, body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AuthCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestLoginSetsCookie(t *testing.T) {
	svc := new(mockAuth)
	svc.On("Login", mock.Anything, mock.MatchedBy(func(req *auth.LoginRequest) bool {
		return req.Email == "jane@example.com" && req.IPAddress == "198.51.100.4"
	})).Return(&auth.LoginResponse{
		User:      auth.UserInfo{ID: "u1", Email: "jane@example.com"},
		Token:     "signed",
		ExpiresAt: time.Now().Add(CookieMaxAge),
	}, nil)

	for _, secure := range []bool{false, true} {
		r := newRouter(svc, secure)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"jane@example.com","password":"hunter22"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100.4")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		cookie := sessionCookie(t, w)
		assert.Equal(t, "signed", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, secure, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, 7*24*60*60, cookie.MaxAge)
		assert.Equal(t, "/", cookie.Path)
	}
}

func TestLoginValidation(t *testing.T) {
	svc := new(mockAuth)
	r := newRouter(svc, false)

	for _, body := range []string{
		`{"email":"not-an-email","password":"x"}`,
		`{"email":"jane@example.com","password":""}`,
		`not json`,
	} {
		w := do(r, http.MethodPost, "/auth/login", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "Invalid input data")
	}
	svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"bad credentials", xerrors.New(xerrors.ErrUnauthorized, "Invalid email or password"), http.StatusUnauthorized, "Invalid email or password"},
		{"rate limited", xerrors.New(xerrors.ErrRateLimited, "Too many login attempts. Please try again later."), http.StatusTooManyRequests, "Too many login attempts"},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockAuth)
			svc.On("Login", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := do(newRouter(svc, false), http.MethodPost, "/auth/login", `{"email":"jane@example.com","password":"hunter22"}`, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			assert.NotContains(t, w.Body.String(), "db exploded")
		})
	}
}

func TestRegister(t *testing.T) {
	svc := new(mockAuth)
	svc.On("Register", mock.Anything, mock.Anything).Return(&auth.LoginResponse{Token: "fresh"}, nil).Once()
	r := newRouter(svc, false)

	w := do(r, http.MethodPost, "/auth/register", `{"name":"Jane","email":"jane@example.com","password":"longenough"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "fresh", sessionCookie(t, w).Value)

	w = do(r, http.MethodPost, "/auth/register", `{"name":"Jane","email":"jane@example.com","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.On("Register", mock.Anything, mock.Anything).Return(nil, xerrors.New(xerrors.ErrDuplicateEntry, "A user with this email already exists"))
	w = do(r, http.MethodPost, "/auth/register", `{"name":"Jane","email":"jane@example.com","password":"longenough"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "A user with this email already exists")
}

func TestLogoutClearsCookie(t *testing.T) {
	svc := new(mockAuth)
	svc.On("Logout", mock.Anything, userClaims).Return(nil)

	w := do(newRouter(svc, false), http.MethodPost, "/auth/logout", "", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
	svc.AssertExpectations(t)
}

func TestMe(t *testing.T) {
	svc := new(mockAuth)
	svc.On("Me", mock.Anything, "u1").Return(&auth.UserInfo{ID: "u1", Name: "Jane"}, nil)
	r := newRouter(svc, false)

	w := do(r, http.MethodGet, "/auth/me", "", "tok")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Jane"`)

	w = do(r, http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
