package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"threadline/internal/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingOK(context.Context) error { return nil }

func pingDown(context.Context) error { return errors.New("connection refused") }

func newApp(h *handlers.Handlers) *fiber.App {
	app := fiber.New()
	app.Get("/health/live", h.Live)
	app.Get("/healthz", h.Ready)
	return app
}

func readBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestLive(t *testing.T) {
	app := newApp(&handlers.Handlers{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", readBody(t, resp)["status"])
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		store      handlers.Pinger
		sessions   handlers.Pinger
		wantStatus int
		wantStore  string
		wantSess   string
	}{
		{"all healthy", handlers.PingFunc(pingOK), handlers.PingFunc(pingOK), http.StatusOK, "healthy", "healthy"},
		{"store down", handlers.PingFunc(pingDown), handlers.PingFunc(pingOK), http.StatusServiceUnavailable, "unhealthy", "healthy"},
		{"sessions missing", handlers.PingFunc(pingOK), nil, http.StatusServiceUnavailable, "healthy", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&handlers.Handlers{Store: tt.store, Sessions: tt.sessions, Version: "test"})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := readBody(t, resp)
			checks, ok := body["checks"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantStore, checks["store"])
			assert.Equal(t, tt.wantSess, checks["sessions"])
		})
	}
}
