package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = pingFunc(func(context.Context) error { return nil })
	down = pingFunc(func(context.Context) error { return errors.New("unreachable") })
)

func get(t *testing.T, h *Handler, path string) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group(""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		probes     []Probe
		wantCode   int
		wantStatus string
	}{
		{
			name:       "all up",
			probes:     []Probe{{Name: "store", Pinger: up}, {Name: "redis", Pinger: up, Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "optional down",
			probes:     []Probe{{Name: "store", Pinger: up}, {Name: "redis", Pinger: down, Optional: true}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "store down",
			probes:     []Probe{{Name: "store", Pinger: down}, {Name: "redis", Pinger: up, Optional: true}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewHandler(time.Now(), tt.probes...), "/health")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestPingAndUptime(t *testing.T) {
	h := NewHandler(time.Now().Add(-90 * time.Minute))

	code, body := get(t, h, "/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body["data"])

	code, body = get(t, h, "/uptime")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1h0m0s", body["humanize"])
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "42s", humanizeDuration(42*time.Second+300*time.Millisecond))
	assert.Equal(t, "5m0s", humanizeDuration(5*time.Minute+10*time.Second))
	assert.Equal(t, "72h0m0s", humanizeDuration(3*24*time.Hour+5*time.Hour))
}
