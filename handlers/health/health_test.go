package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nexora-Open-Source/feed-republisher/middleware"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestHandler(storeErr, sourcesErr error) *Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	middleware.Logger = logger
	return NewHandler(stubPinger{storeErr}, SourcesCheckFunc(func() error { return sourcesErr }), logger)
}

func TestHandleHealthCheck(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, map[string]string{"store": "healthy", "sources": "healthy"}, status.Services)
}

func TestHandleHealthCheckUnhealthyStore(t *testing.T) {
	h := newTestHandler(errors.New("datastore unreachable"), nil)

	w := httptest.NewRecorder()
	h.HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Services["store"], "datastore unreachable")
}

func TestHandleLivenessCheck(t *testing.T) {
	h := newTestHandler(errors.New("ignored"), nil)

	w := httptest.NewRecorder()
	h.HandleLivenessCheck(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "alive", response["status"])
}

func TestHandleReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		sourcesErr error
		code       int
	}{
		{"ready", nil, nil, http.StatusOK},
		{"store down", errors.New("timeout"), nil, http.StatusServiceUnavailable},
		{"broken sources file", nil, errors.New("rss_url is required"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.storeErr, tt.sourcesErr)
			w := httptest.NewRecorder()
			h.HandleReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
