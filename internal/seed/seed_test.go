package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"threadline/internal/bootstrap"
	"threadline/internal/config"
	"threadline/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRuntime(t *testing.T) *bootstrap.Runtime {
	t.Helper()
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	rt, err := bootstrap.InitRuntime(context.Background(), &config.Config{
		Env:               "test",
		StoreDriver:       config.StoreRedis,
		RedisURL:          mr.Addr(),
		RedisKeyPrefix:    "seed:",
		TxMaxAttempts:     5,
		BlobDriver:        config.BlobLocal,
		BlobLocalDir:      filepath.Join(dir, "uploads"),
		BlobPublicBaseURL: "http://localhost/uploads",
		PurgePageSize:     10,
		AdminSessionTTL:   time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestSeeder_Run(t *testing.T) {
	rt := setupRuntime(t)
	ctx := context.Background()

	res, err := NewSeeder(rt.Services, 42).Run(ctx, Options{
		NumUsers:       6,
		NumPosts:       10,
		FollowsPerUser: 2,
		NumChats:       3,
	})
	require.NoError(t, err)

	assert.Len(t, res.UserIDs, 6)
	assert.Len(t, res.PostIDs, 10)
	assert.Len(t, res.ChatIDs, 3)
	assert.Equal(t, 12, res.Follows)
	assert.Equal(t, 6, res.Reviews)
	assert.GreaterOrEqual(t, res.Messages, 3)

	for _, id := range res.UserIDs {
		p, err := rt.Services.Profiles.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.Len(t, p.Following, 2)
		assert.Equal(t, 1, p.TotalReviews)
		assert.NotEmpty(t, p.PreferredStyles)
	}

	posts, err := repository.NewPostRepository(rt.Store).ListAvailable(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 10)

	recs, err := rt.Services.Posts.RecommendFor(ctx, res.UserIDs[0], 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(recs), 5)
	for _, p := range recs {
		assert.NotEqual(t, res.UserIDs[0], p.AuthorID)
	}
}

func TestSeeder_TooFewUsers(t *testing.T) {
	rt := setupRuntime(t)

	res, err := NewSeeder(rt.Services, 1).Run(context.Background(), Options{NumUsers: 1, NumPosts: 5, NumChats: 2})
	require.NoError(t, err)
	assert.Len(t, res.UserIDs, 1)
	assert.Empty(t, res.PostIDs)
}

func TestUsername_SatisfiesRules(t *testing.T) {
	s := NewSeeder(bootstrap.Services{}, 7)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		u := s.username(i)
		assert.Regexp(t, `^[a-z0-9._]{3,30}$`, u)
		assert.False(t, seen[u], "duplicate username %s", u)
		seen[u] = true
	}
}
