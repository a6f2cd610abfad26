package service

import (
	"context"
	"errors"
	"testing"

	"threadline/internal/docstore"
	"threadline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePost_UploadsImages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("seller")

	post, err := f.postService().CreatePost(context.Background(), "seller", models.NewPostInput{
		Title:  "Levi's 501",
		Tags:   []string{"denim"},
		Images: []models.Upload{fakeImage(), fakeImage()},
		Price:  40,
	})
	require.NoError(t, err)
	assert.Len(t, post.Images, 2)
	assert.True(t, post.IsAvailable)
	for _, img := range post.Images {
		assert.True(t, f.blobs.has(img))
	}

	stored, err := f.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Images, stored.Images)
	assert.Equal(t, "seller", stored.AuthorID)
}

func TestCreatePost_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("seller")
	svc := f.postService()

	six := make([]models.Upload, models.MaxPostImages+1)
	for i := range six {
		six[i] = fakeImage()
	}
	tests := []struct {
		name string
		in   models.NewPostInput
	}{
		{"no images", models.NewPostInput{Title: "t"}},
		{"too many images", models.NewPostInput{Title: "t", Images: six}},
		{"blank title", models.NewPostInput{Title: "  ", Images: []models.Upload{fakeImage()}}},
		{"negative price", models.NewPostInput{Title: "t", Price: -1, Images: []models.Upload{fakeImage()}}},
		{"not an image", models.NewPostInput{Title: "t", Images: []models.Upload{{Data: []byte("%PDF"), ContentType: "application/pdf"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(context.Background(), "seller", tt.in)
			assertCode(t, err, models.CodeValidation)
		})
	}
	assert.Zero(t, f.blobs.count())
}

func TestCreatePost_AuthorChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("seller")
	in := models.NewPostInput{Title: "t", Images: []models.Upload{fakeImage()}}

	_, err := f.postService().CreatePost(context.Background(), "ghost", in)
	assertCode(t, err, models.CodeNotFound)

	require.NoError(t, f.profiles.Update(context.Background(), "seller", docstore.Field("isBanned", true)))
	_, err = f.postService().CreatePost(context.Background(), "seller", in)
	assertCode(t, err, models.CodeForbidden)
	assert.Zero(t, f.blobs.count())
}

func TestCreatePost_ReleasesUploadsOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("seller")
	calls := 0
	f.blobs.putFn = func(_ context.Context, data []byte, _ string) (string, error) {
		calls++
		if calls == 3 {
			return "", errors.New("quota exceeded")
		}
		return f.blobs.store(data), nil
	}

	_, err := f.postService().CreatePost(context.Background(), "seller", models.NewPostInput{
		Title:  "t",
		Images: []models.Upload{fakeImage(), fakeImage(), fakeImage()},
	})
	assertCode(t, err, models.CodeExternalService)
	assert.Zero(t, f.blobs.count())

	posts, err := f.posts.ListByAuthor(context.Background(), "seller", 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestDeletePost(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("seller")
	f.user("other")
	post := f.post("seller", 2)
	svc := f.postService()
	ctx := context.Background()

	err := svc.DeletePost(ctx, "other", post.ID)
	assertCode(t, err, models.CodeForbidden)

	f.blobs.deleteFn = func(context.Context, string) error { return errors.New("bucket offline") }
	require.NoError(t, svc.DeletePost(ctx, "seller", post.ID))

	_, err = f.posts.GetByID(ctx, post.ID)
	assertCode(t, err, models.CodeNotFound)

	err = svc.DeletePost(ctx, "seller", post.ID)
	assertCode(t, err, models.CodeNotFound)
}

func TestRecommendFor(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	for _, id := range []string{"viewer", "s1", "s2", "blocked"} {
		f.user(id)
	}
	ctx := context.Background()
	require.NoError(t, f.profiles.Update(ctx, "viewer",
		docstore.Field("preferredStyles", []string{"vintage"}),
		docstore.Field("blockedUsers", []string{"blocked"}),
	))

	plain := f.post("s1", 1, "basic")
	styled := f.post("s2", 1, "vintage")
	f.post("blocked", 1, "vintage")
	f.post("viewer", 1, "vintage")

	got, err := f.postService().RecommendFor(ctx, "viewer", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, styled.ID, got[0].ID)
	assert.Equal(t, plain.ID, got[1].ID)

	top, err := f.postService().RecommendFor(ctx, "viewer", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, styled.ID, top[0].ID)
}
