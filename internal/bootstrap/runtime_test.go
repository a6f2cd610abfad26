package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"threadline/internal/config"
	"threadline/internal/docstore/redisdoc"
	"threadline/internal/docstore/sqldoc"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:               "test",
		Port:              "0",
		StoreDriver:       config.StoreRedis,
		RedisURL:          mr.Addr(),
		RedisKeyPrefix:    "tl:",
		SQLitePath:        filepath.Join(dir, "store.db"),
		TxMaxAttempts:     5,
		BlobDriver:        config.BlobLocal,
		BlobLocalDir:      filepath.Join(dir, "uploads"),
		BlobPublicBaseURL: "http://localhost/uploads",
		PurgePageSize:     10,
		AdminSessionTTL:   time.Minute,
	}
}

func TestInitRuntime_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	rt, err := InitRuntime(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.IsType(t, &redisdoc.Store{}, rt.Store)
	assert.False(t, rt.ownsRedis)
	require.NoError(t, rt.Store.Ping(ctx))

	profile, err := rt.Services.Profiles.ReserveUsername(ctx, "u1", "first_user")
	require.NoError(t, err)
	assert.Equal(t, "first_user", profile.Username)

	token, err := rt.Sessions.Issue(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, mr.Exists("tl:admin_session:"+token))
}

func TestInitRuntime_SQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	cfg.StoreDriver = config.StoreSQLite
	ctx := context.Background()

	rt, err := InitRuntime(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.IsType(t, &sqldoc.Store{}, rt.Store)
	assert.True(t, rt.ownsRedis)

	_, err = rt.Services.Profiles.ReserveUsername(ctx, "u1", "sql_user")
	require.NoError(t, err)
	got, err := rt.Services.Profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sql_user", got.Username)
}

func TestInitRuntime_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	mr.Close()

	_, err := InitRuntime(context.Background(), cfg)
	assert.Error(t, err)
}

func TestInitRuntime_UnknownBlobDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	cfg.BlobDriver = "ftp"

	_, err := InitRuntime(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob")
}
