package folio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/store"
)

// publishedLister is the part of the post store the cache reads from.
type publishedLister interface {
	List(ctx context.Context, status content.Status) ([]content.BlogPost, error)
}

// PostCache is an in-memory cache of published posts and their tags with a
// TTL. Writes through the admin API invalidate it.
type PostCache struct {
	mu      sync.RWMutex
	posts   []content.BlogPost
	tags    []string
	fetched time.Time
	ttl     time.Duration
	store   publishedLister
}

// NewPostCache creates a PostCache backed by s.
func NewPostCache(s publishedLister, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.tags = nil
	c.mu.Unlock()
}

func (c *PostCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	posts, err := c.store.List(ctx, content.StatusPublished)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []content.BlogPost{}
	}
	var all []string
	for _, p := range posts {
		all = append(all, p.Tags...)
	}
	tags := content.NormalizeTags(all)
	sort.Strings(tags)
	c.posts = posts
	c.tags = tags
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns cached posts and tags after making sure they are
// fresh. Only a reload takes the write lock.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]content.BlogPost, []string, error) {
	c.mu.RLock()
	if c.valid() {
		posts, tags := c.posts, c.tags
		c.mu.RUnlock()
		return posts, tags, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.posts, c.tags, nil
}

// ListPosts returns published posts, newest first, optionally filtered by
// tag.
func (c *PostCache) ListPosts(ctx context.Context, tag string) ([]content.BlogPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return posts, nil
	}
	filtered := []content.BlogPost{}
	for _, p := range posts {
		if p.HasTag(tag) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListTags returns the tags used by published posts.
func (c *PostCache) ListTags(ctx context.Context) ([]string, error) {
	_, tags, err := c.ensureLoaded(ctx)
	return tags, err
}

// GetPost returns a published post by slug.
func (c *PostCache) GetPost(ctx context.Context, slug string) (content.BlogPost, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return content.BlogPost{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return content.BlogPost{}, store.ErrNotFound
}
