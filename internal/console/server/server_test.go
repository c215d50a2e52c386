package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-activity-dashboard/internal/console/handler"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
)

type stubDashboard struct{}

func (stubDashboard) GetDashboardSummary(_ context.Context, req domain.SummaryRequest) (*domain.DashboardSummary, error) {
	return &domain.DashboardSummary{CredentialID: req.CredentialID, RangeDays: 7}, nil
}

func (stubDashboard) ListCredentials(context.Context) ([]domain.CredentialSummary, error) {
	return []domain.CredentialSummary{}, nil
}

type stubRollout struct{}

func (stubRollout) IssueToken(string) (*domain.TokenResponse, error) {
	return &domain.TokenResponse{Token: "t"}, nil
}

func (stubRollout) ClientConfig(context.Context) (*domain.ClientConfig, error) {
	return &domain.ClientConfig{DefaultUserID: "user123"}, nil
}

func newTestServer(t *testing.T, cfg infra.ServerConfig, metrics *infra.Metrics) *DashboardServer {
	t.Helper()
	logger := zap.NewNop()
	return NewDashboardServer(cfg, logger, metrics,
		handler.NewDashboardHandler(stubDashboard{}, "", logger),
		handler.NewRolloutHandler(stubRollout{}, logger),
	)
}

func do(s http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, infra.ServerConfig{}, nil)

	tests := []struct {
		target string
		code   int
	}{
		{"/api/health", http.StatusOK},
		{"/api/config", http.StatusOK},
		{"/api/rollout/token", http.StatusOK},
		{"/api/credentials", http.StatusOK},
		{"/api/dashboard/summary?credentialId=c", http.StatusOK},
		{"/api/dashboard/summary", http.StatusBadRequest},
		{"/api/unknown", http.StatusNotFound},
		{"/dashboard", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := do(s, http.MethodGet, tt.target, nil)
		assert.Equal(t, tt.code, rec.Code, tt.target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), tt.target)
	}
}

func TestTraceIDPropagation(t *testing.T) {
	s := newTestServer(t, infra.ServerConfig{}, nil)

	rec := do(s, http.MethodGet, "/api/health", map[string]string{"X-Trace-ID": "trace-123"})
	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-ID"))

	rec = do(s, http.MethodGet, "/api/health", nil)
	assert.Len(t, rec.Header().Get("X-Trace-ID"), 36, "generated uuid")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, infra.ServerConfig{CORSOrigins: []string{"https://dash.example.com"}}, nil)

	rec := do(s, http.MethodOptions, "/api/credentials", map[string]string{
		"Origin":                        "https://dash.example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, infra.ServerConfig{RateLimitRPS: 1, RateLimitBurst: 2, TrustProxyHeaders: true}, nil)
	hdr := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/health", hdr).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/health", hdr).Code)

	rec := do(s, http.MethodGet, "/api/health", hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	// другой клиент не страдает
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/health", map[string]string{"X-Forwarded-For": "198.51.100.1"}).Code)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	l := newClientRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	now = now.Add(11 * time.Minute)
	assert.True(t, l.allow("b"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "a")
	assert.Contains(t, l.clients, "b")
}

func TestRateLimit_IgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	s := newTestServer(t, infra.ServerConfig{RateLimitRPS: 1, RateLimitBurst: 2}, nil)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		// каждый запрос подставляет новый адрес, RemoteAddr один и тот же
		hdr := map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("203.0.113.%d", i+1),
		}
		codes = append(codes, do(s, http.MethodGet, "/api/health", hdr).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_KeysOnRemoteAddr(t *testing.T) {
	l := newClientRateLimiter(1, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:5000", "1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001", "2.2.2.2"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:5000", "2.2.2.2"))
}

func TestRateLimiter_SweepsOnInterval(t *testing.T) {
	l := newClientRateLimiter(100, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	sweptAt := l.lastSweep

	// запросы внутри интервала не трогают карту целиком
	now = now.Add(30 * time.Second)
	l.allow("b")
	assert.Equal(t, sweptAt, l.lastSweep)

	now = now.Add(time.Minute)
	l.allow("c")
	assert.Equal(t, now, l.lastSweep)
}

func TestRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, newClientRateLimiter(0, 10))
	assert.Nil(t, newClientRateLimiter(5, 0))
}

func TestStaticSPA(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>spa</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	s := newTestServer(t, infra.ServerConfig{StaticDir: dir}, nil)

	rec := do(s, http.MethodGet, "/assets/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = do(s, http.MethodGet, "/dashboard/cred-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spa")

	rec = do(s, http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), "spa")

	rec = do(s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

	rec = do(s, http.MethodGet, "/../../etc/passwd", nil)
	assert.NotContains(t, rec.Body.String(), "root:")
}

func TestAccessLogMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)
	s := newTestServer(t, infra.ServerConfig{}, metrics)

	do(s, http.MethodGet, "/api/health", nil)
	do(s, http.MethodGet, "/api/health", nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "dashboard_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/api/health" && labels["status"] == "200" {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, total)
}
