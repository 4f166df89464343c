package folio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/store"
)

type countingLister struct {
	calls int
	posts []content.BlogPost
	err   error
}

func (l *countingLister) List(_ context.Context, status content.Status) ([]content.BlogPost, error) {
	l.calls++
	if status != content.StatusPublished {
		return nil, errors.New("cache must only list published posts")
	}
	return l.posts, l.err
}

func TestPostCache(t *testing.T) {
	ctx := context.Background()
	lister := &countingLister{posts: []content.BlogPost{
		{ID: "1", Slug: "one", Tags: []string{"go", "web"}},
		{ID: "2", Slug: "two", Tags: []string{"Go"}},
		{ID: "3", Slug: "three"},
	}}
	cache := NewPostCache(lister, time.Minute)

	posts, err := cache.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	tagged, err := cache.ListPosts(ctx, "GO")
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	tags, err := cache.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "web"}, tags)

	got, err := cache.GetPost(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "2", got.ID)

	_, err = cache.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, lister.calls)

	cache.Invalidate()
	_, err = cache.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestPostCacheExpiresAndReportsErrors(t *testing.T) {
	ctx := context.Background()
	lister := &countingLister{}
	cache := NewPostCache(lister, time.Nanosecond)

	posts, err := cache.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, posts)
	time.Sleep(time.Millisecond)
	_, err = cache.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)

	lister.err = store.ErrStoreUnavailable
	cache.Invalidate()
	_, err = cache.ListTags(ctx)
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}
