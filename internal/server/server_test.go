package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"threadline/internal/bootstrap"
	"threadline/internal/config"
	"threadline/internal/docstore/redisdoc"
	"threadline/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rt := &bootstrap.Runtime{
		Store:    redisdoc.New(client, redisdoc.Options{Prefix: "tl:"}),
		Sessions: session.NewAdminSessions(client, "tl:", time.Minute),
	}
	cfg := &config.Config{Port: "0", Env: "test"}
	return New(cfg, rt, prometheus.NewRegistry()), mr
}

func TestServer_Healthz(t *testing.T) {
	s, _ := setupServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_HealthzWhenStoreDown(t *testing.T) {
	s, mr := setupServer(t)
	mr.Close()

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), 10000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := setupServer(t)

	_, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestServer_UnknownRoute(t *testing.T) {
	s, _ := setupServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
