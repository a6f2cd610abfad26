package service

import (
	"context"
	"fmt"
	"testing"

	"threadline/internal/docstore"
	"threadline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestToggleFollow_IsSymmetricAndSelfInverse(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("a")
	f.user("b")
	svc := NewRelationshipService(f.profiles)
	ctx := context.Background()

	following, err := svc.ToggleFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, following)
	assert.Equal(t, []string{"b"}, f.reload("a").Following)
	assert.Equal(t, []string{"a"}, f.reload("b").Followers)
	assert.Empty(t, f.reload("a").Followers)

	following, err = svc.ToggleFollow(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, following)
	assert.Empty(t, f.reload("a").Following)
	assert.Empty(t, f.reload("b").Followers)
}

func TestToggleFollow_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("a")
	svc := NewRelationshipService(f.profiles)

	_, err := svc.ToggleFollow(context.Background(), "a", "a")
	assertCode(t, err, models.CodeForbidden)

	_, err = svc.ToggleFollow(context.Background(), "a", "ghost")
	assertCode(t, err, models.CodeNotFound)
	assert.Empty(t, f.reload("a").Following)
}

func TestToggleFollow_ConcurrentFollowersOfOneTarget(t *testing.T) {
	t.Parallel()
	const fans = 6
	f := newFixture(t, docstore.DefaultMaxAttempts)
	f.user("star")
	ids := make([]string, fans)
	for i := range ids {
		ids[i] = fmt.Sprintf("fan%d", i)
		f.user(ids[i])
	}
	svc := NewRelationshipService(f.profiles)

	start := make(chan struct{})
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			<-start
			_, err := svc.ToggleFollow(context.Background(), id, "star")
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.ElementsMatch(t, ids, f.reload("star").Followers)
	for _, id := range ids {
		assert.Equal(t, []string{"star"}, f.reload(id).Following)
	}
}

func TestToggleBlock_TouchesOnlyTheBlocker(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("a")
	f.user("b")
	svc := NewRelationshipService(f.profiles)
	ctx := context.Background()
	before := f.reload("b")

	blocked, err := svc.ToggleBlock(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, []string{"b"}, f.reload("a").BlockedUsers)
	assert.Equal(t, before, f.reload("b"))

	blocked, err = svc.ToggleBlock(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Empty(t, f.reload("a").BlockedUsers)

	_, err = svc.ToggleBlock(ctx, "a", "a")
	assertCode(t, err, models.CodeForbidden)
	_, err = svc.ToggleBlock(ctx, "a", "ghost")
	assertCode(t, err, models.CodeNotFound)
}

func TestReconcileFollowers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	for _, id := range []string{"a", "b", "c", "d"} {
		f.user(id)
	}
	ctx := context.Background()

	// a follows b without the mirror entry; c lists a follower that does not follow it.
	require.NoError(t, f.profiles.Update(ctx, "a", docstore.Field("following", []string{"b"})))
	require.NoError(t, f.profiles.Update(ctx, "c", docstore.Field("followers", []string{"d"})))

	svc := NewRelationshipService(f.profiles)
	_, err := svc.ToggleFollow(ctx, "d", "a")
	require.NoError(t, err)

	repaired, err := svc.ReconcileFollowers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	assert.Equal(t, []string{"a"}, f.reload("b").Followers)
	assert.Empty(t, f.reload("c").Followers)
	assert.Equal(t, []string{"d"}, f.reload("a").Followers)

	repaired, err = svc.ReconcileFollowers(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestSameMembers(t *testing.T) {
	assert.True(t, sameMembers(nil, []string{}))
	assert.True(t, sameMembers([]string{"b", "a"}, []string{"a", "b"}))
	assert.False(t, sameMembers([]string{"a"}, []string{"b"}))
	assert.False(t, sameMembers([]string{"a"}, []string{"a", "b"}))
}
