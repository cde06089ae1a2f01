package usage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"saas-billing/internal/domain/usage"
	"saas-billing/internal/middleware"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMeter struct{ mock.Mock }

func (m *mockMeter) Track(ctx context.Context, userID string, metric usage.Metric, value float64) error {
	return m.Called(ctx, userID, metric, value).Error(0)
}

func (m *mockMeter) Current(ctx context.Context, userID string) ([]usage.Summary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]usage.Summary), args.Error(1)
}

func (m *mockMeter) List(ctx context.Context, userID string, metric usage.Metric) ([]*usage.Record, error) {
	args := m.Called(ctx, userID, metric)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*usage.Record), args.Error(1)
}

type stubTokens map[string]*jwt.Claims

func (s stubTokens) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func newRouter(t *testing.T, svc *mockMeter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.RegisterGin())

	r := gin.New()
	h := NewUsageHandler(svc, zap.NewNop())
	mw := middleware.NewAuthMiddleware(stubTokens{"tok": {UserID: "u1", Role: "USER"}}, zap.NewNop())
	g := r.Group("/usage", mw.Auth())
	g.POST("/track", h.Track)
	g.GET("/current", h.Current)
	g.GET("/:metric", h.ByMetric)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrack(t *testing.T) {
	svc := new(mockMeter)
	svc.On("Track", mock.Anything, "u1", usage.MetricAPICalls, 150.0).Return(nil)
	r := newRouter(t, svc)

	w := do(r, http.MethodPost, "/usage/track", `{"metric":"API_CALLS","value":150}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	svc.AssertExpectations(t)
}

func TestTrackRejects(t *testing.T) {
	svc := new(mockMeter)
	svc.On("Track", mock.Anything, "u1", usage.MetricProjects, 1.0).Return(errors.New("insert failed"))
	r := newRouter(t, svc)

	for _, body := range []string{
		`{"metric":"BANDWIDTH","value":1}`,
		`{"metric":"API_CALLS","value":-1}`,
		`{"metric":"API_CALLS"}`,
		`{"metric":"PROJECTS","value":1}`,
	} {
		w := do(r, http.MethodPost, "/usage/track", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "Failed to track usage")
	}
}

func TestCurrent(t *testing.T) {
	limit := 10000.0
	svc := new(mockMeter)
	svc.On("Current", mock.Anything, "u1").Return([]usage.Summary{
		{Metric: usage.MetricAPICalls, Total: 4200, Limit: &limit},
		{Metric: usage.MetricStorageGB, Total: 1.5},
	}, nil)

	w := do(newRouter(t, svc), http.MethodGet, "/usage/current", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"metric":"API_CALLS","total":4200,"limit":10000}`)
	assert.Contains(t, w.Body.String(), `{"metric":"STORAGE_GB","total":1.5,"limit":null}`)
}

func TestByMetric(t *testing.T) {
	svc := new(mockMeter)
	svc.On("List", mock.Anything, "u1", usage.MetricStorageGB).Return([]*usage.Record{{ID: "r1", Value: 2}}, nil)
	svc.On("List", mock.Anything, "u1", usage.Metric("NOPE")).Return(nil, xerrors.New(xerrors.ErrInvalidInput, "Unknown usage metric"))
	r := newRouter(t, svc)

	w := do(r, http.MethodGet, "/usage/storage_gb", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/usage/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown usage metric")
}
