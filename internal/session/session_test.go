package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessions(t *testing.T, ttl time.Duration) (*AdminSessions, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAdminSessions(client, "tl:", ttl), mr
}

func TestAdminSessions_IssueAndLookup(t *testing.T) {
	sessions, mr := setupSessions(t, time.Minute)
	ctx := context.Background()

	token, err := sessions.Issue(ctx, "admin-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, mr.Exists("tl:admin_session:"+token))
	assert.Equal(t, time.Minute, mr.TTL("tl:admin_session:"+token))

	adminID, err := sessions.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", adminID)
}

func TestAdminSessions_Expire(t *testing.T) {
	sessions, mr := setupSessions(t, time.Minute)
	ctx := context.Background()

	token, err := sessions.Issue(ctx, "admin-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = sessions.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdminSessions_Revoke(t *testing.T) {
	sessions, _ := setupSessions(t, time.Minute)
	ctx := context.Background()

	token, err := sessions.Issue(ctx, "admin-1")
	require.NoError(t, err)
	require.NoError(t, sessions.Revoke(ctx, token))
	require.NoError(t, sessions.Revoke(ctx, token))

	_, err = sessions.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdminSessions_Validation(t *testing.T) {
	sessions, _ := setupSessions(t, 0)
	ctx := context.Background()

	assert.Equal(t, DefaultTTL, sessions.ttl)

	_, err := sessions.Issue(ctx, "")
	assert.Error(t, err)

	_, err = sessions.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = sessions.Lookup(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdminSessions_ServerDown(t *testing.T) {
	sessions, mr := setupSessions(t, time.Minute)
	mr.Close()

	_, err := sessions.Lookup(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
