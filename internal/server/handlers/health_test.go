package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no database",
			db:         nil,
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "database reachable",
			db:         setupTestStorage(t).DB(),
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "database unreachable",
			db: pingerFunc(func(context.Context) error {
				return errors.New("disk I/O error")
			}),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), tt.db)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			handler.Health(w, req)

			resp := w.Result()
			defer func() {
				err := resp.Body.Close()
				assert.NoError(t, err)
			}()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var healthResp api.HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
			assert.Equal(t, tt.wantBody, healthResp.Status)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		expectedIP string
	}{
		{
			name:       "X-Forwarded-For with single IP",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For with multiple IPs",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1, 10.0.0.2, 10.0.0.3",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Real-IP when X-Forwarded-For is empty",
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "192.168.2.1",
			expectedIP: "192.168.2.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.3.1:54321",
			expectedIP: "192.168.3.1",
		},
		{
			name:       "RemoteAddr that is not host:port",
			remoteAddr: "pipe",
			expectedIP: "pipe",
		},
		{
			name:       "X-Forwarded-For takes precedence over X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1",
			xRealIP:    "192.168.2.1",
			expectedIP: "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.expectedIP, ClientIP(req))
		})
	}
}
