package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gardenwatch/internal/scheduler"
	"gardenwatch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProbe struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (p stubProbe) Name() string { return p.name }

func (p stubProbe) Check(ctx context.Context) error {
	if p.panic {
		panic("boom")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

type stubDiagnostics struct {
	report *scheduler.Report
	err    error
}

func (d stubDiagnostics) Collect(context.Context) (*scheduler.Report, error) {
	return d.report, d.err
}

type chanTrigger struct {
	calls chan struct{}
	err   error
}

func (t *chanTrigger) EnsureDailyRun(context.Context) (scheduler.Outcome, error) {
	t.calls <- struct{}{}
	return scheduler.OutcomeCompleted, t.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = testLogger()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestNewServer_RequiresLogger(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		probes     []HealthProbe
		wantStatus int
		wantBody   string
	}{
		{name: "no probes", wantStatus: http.StatusOK, wantBody: "healthy"},
		{
			name:       "all healthy",
			probes:     []HealthProbe{stubProbe{name: "database"}},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:       "probe failure",
			probes:     []HealthProbe{stubProbe{name: "database"}, stubProbe{name: "weather", err: errors.New("refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
		{
			name:       "probe panic",
			probes:     []HealthProbe{stubProbe{name: "database", panic: true}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Config{Probes: tt.probes})
			rec, body := do(t, s.Handler(), "/health")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, body["status"])
		})
	}
}

func TestHealth_ComponentMessage(t *testing.T) {
	s := newTestServer(t, Config{Probes: []HealthProbe{stubProbe{name: "database", err: errors.New("refused")}}})
	_, body := do(t, s.Handler(), "/health")

	components := body["components"].(map[string]any)
	db := components["database"].(map[string]any)
	assert.Equal(t, "unhealthy", db["status"])
	assert.Equal(t, "refused", db["message"])
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingProbe(t *testing.T) {
	p := PingProbe("database", pingFunc(func(context.Context) error { return errors.New("down") }))
	assert.Equal(t, "database", p.Name())
	assert.EqualError(t, p.Check(context.Background()), "down")
}

func TestDiagnostics(t *testing.T) {
	t.Run("not mounted without source", func(t *testing.T) {
		s := newTestServer(t, Config{})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("report", func(t *testing.T) {
		s := newTestServer(t, Config{Diagnostics: stubDiagnostics{report: &scheduler.Report{
			NotificationsToday: 4,
			DispatchProvider:   "fcm",
			DispatchReady:      true,
		}}})
		rec, body := do(t, s.Handler(), "/diagnostics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 4, body["notifications_today"])
		assert.Equal(t, "fcm", body["dispatch_provider"])
	})

	t.Run("app error status", func(t *testing.T) {
		s := newTestServer(t, Config{Diagnostics: stubDiagnostics{
			err: types.NewAppError(types.ErrCodeInternalDB, "failed to count notifications", nil),
		}})
		rec, body := do(t, s.Handler(), "/diagnostics")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, string(types.ErrCodeInternalDB), errBody["code"])
		assert.NotEmpty(t, errBody["request_id"])
	})

	t.Run("generic error hides message", func(t *testing.T) {
		s := newTestServer(t, Config{Diagnostics: stubDiagnostics{err: errors.New("password=hunter2")}})
		_, body := do(t, s.Handler(), "/diagnostics")
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "an unexpected error occurred", errBody["message"])
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, Config{})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Len(t, rec.Header().Get(HeaderRequestID), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
	})
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, Config{})
	s.router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec, body := do(t, s.Handler(), "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), body["error"].(map[string]any)["code"])
}

func TestFallbackTrigger(t *testing.T) {
	trigger := &chanTrigger{calls: make(chan struct{}, 1), err: errors.New("flush failed")}
	s := newTestServer(t, Config{Trigger: trigger})

	rec, _ := do(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code, "request must not be affected by the trigger")

	select {
	case <-trigger.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("fallback trigger was not invoked")
	}
}
