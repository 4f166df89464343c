// Package store persists blog posts. The Adapter puts a remote SQL store in
// front of a durable local fallback and degrades to the fallback, per call,
// when the remote cannot be reached.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/internal/logging"
	"github.com/eringen/folio/internal/metrics"
)

// Mode is the backend selection state of an Adapter.
type Mode int

const (
	// ModeUnconfigured routes everything to the local store.
	ModeUnconfigured Mode = iota
	// ModeConfigured tries the remote first on every call.
	ModeConfigured
	// ModePinned routes everything to the local store after a remote
	// failure, for the rest of the process lifetime.
	ModePinned
)

func (m Mode) String() string {
	switch m {
	case ModeConfigured:
		return "configured"
	case ModePinned:
		return "pinned"
	default:
		return "unconfigured"
	}
}

// Options tune an Adapter. Zero values get defaults.
type Options struct {
	// RemoteTimeout bounds each remote call. Default 5s.
	RemoteTimeout time.Duration
	// PinOnFailure switches to the local store for good after the first
	// remote failure.
	PinOnFailure bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
	NewID        func() string
}

// Adapter is the post store used by the rest of the application.
type Adapter struct {
	remote  Backend
	local   Backend
	opts    Options
	log     *slog.Logger
	pinned  atomic.Bool
	counter sync.Mutex
}

// NewAdapter returns an Adapter over local and an optional remote. A nil
// remote leaves the adapter unconfigured.
func NewAdapter(local, remote Backend, opts Options) (*Adapter, error) {
	if local == nil {
		return nil, errors.New("store: local backend is required")
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Adapter{
		remote: remote,
		local:  local,
		opts:   opts,
		log:    logging.OrDiscard(opts.Logger).With("component", "store"),
	}, nil
}

// Mode reports the current backend selection state.
func (a *Adapter) Mode() Mode {
	switch {
	case a.remote == nil:
		return ModeUnconfigured
	case a.pinned.Load():
		return ModePinned
	default:
		return ModeConfigured
	}
}

// Close closes both backends.
func (a *Adapter) Close() error {
	var errs []error
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	errs = append(errs, a.local.Close())
	return errors.Join(errs...)
}

// do runs fn against the remote, then against the local store when the
// remote fails or does not hold the record. Records written to the local
// store while the remote was failing stay reachable that way.
func (a *Adapter) do(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	if a.Mode() == ModeConfigured {
		rctx, cancel := context.WithTimeout(ctx, a.opts.RemoteTimeout)
		err := fn(rctx, a.remote)
		cancel()
		switch {
		case err == nil || definite(err):
			return err
		case errors.Is(err, ErrNotFound):
			// Not on the remote; the local store may still hold it.
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			a.log.Warn("remote store failed, using local fallback", "op", op, "error", err)
			a.opts.Metrics.StoreFallback(op)
			if a.opts.PinOnFailure && a.pinned.CompareAndSwap(false, true) {
				a.log.Warn("pinned to local store for the rest of the process")
			}
		}
	}
	err := fn(ctx, a.local)
	if err == nil || authoritative(err) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &UnavailableError{Op: op, Err: err}
}

func findOne(ctx context.Context, b Backend, f Filter) (content.BlogPost, error) {
	recs, err := b.Select(ctx, TablePosts, f)
	if err != nil {
		return content.BlogPost{}, err
	}
	if len(recs) == 0 {
		return content.BlogPost{}, ErrNotFound
	}
	return recordToPost(recs[0])
}

// checkSlug fails with a ConflictError when slug belongs to a post other
// than id.
func checkSlug(ctx context.Context, b Backend, slug, id string) error {
	recs, err := b.Select(ctx, TablePosts, Filter{Field: "slug", Value: slug})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if asString(rec["id"]) != id {
			return &ConflictError{Slug: slug}
		}
	}
	return nil
}

// Create stores a new post. ID, slug and timestamps are assigned here; the
// status defaults to draft and may not be archived.
func (a *Adapter) Create(ctx context.Context, p content.BlogPost) (content.BlogPost, error) {
	if p.Status == "" {
		p.Status = content.StatusDraft
	}
	if p.Status != content.StatusDraft && p.Status != content.StatusPublished {
		return content.BlogPost{}, &TransitionError{To: p.Status}
	}
	now := a.opts.Now().UTC()
	if p.ID == "" {
		p.ID = a.opts.NewID()
	}
	p.Slug = content.Slugify(p.Title)
	if p.Slug == "" {
		p.Slug = p.ID
	}
	p.Tags = content.NormalizeTags(p.Tags)
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == content.StatusPublished && p.PublishedAt == nil {
		p.PublishedAt = &now
	}

	err := a.do(ctx, "create", func(ctx context.Context, b Backend) error {
		if err := checkSlug(ctx, b, p.Slug, p.ID); err != nil {
			return err
		}
		if b == a.remote {
			var conflict *ConflictError
			if err := checkSlug(ctx, a.local, p.Slug, p.ID); errors.As(err, &conflict) {
				return err
			}
		}
		return b.Insert(ctx, TablePosts, postToRecord(p))
	})
	if err != nil {
		return content.BlogPost{}, err
	}
	return p, nil
}

// List returns posts newest first. An empty status returns every post.
// While the remote is in use, posts held only by the local store are merged
// in; the remote copy wins when both hold the same id.
func (a *Adapter) List(ctx context.Context, status content.Status) ([]content.BlogPost, error) {
	var f Filter
	if status != "" {
		f = Filter{Field: "status", Value: string(status)}
	}
	var recs []Record
	err := a.do(ctx, "list", func(ctx context.Context, b Backend) error {
		var err error
		recs, err = b.Select(ctx, TablePosts, f)
		if err != nil || b != a.remote {
			return err
		}
		extra, err := a.local.Select(ctx, TablePosts, f)
		if err != nil {
			a.log.Warn("local store unreadable, listing remote posts only", "error", err)
			return nil
		}
		recs = mergeRecords(recs, extra)
		return nil
	})
	if err != nil {
		return nil, err
	}
	posts, err := recordsToPosts(recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

// mergeRecords appends the records of extra whose id is not in recs.
func mergeRecords(recs, extra []Record) []Record {
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		seen[asString(rec["id"])] = struct{}{}
	}
	for _, rec := range extra {
		if _, ok := seen[asString(rec["id"])]; !ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// ListTags returns the sorted set of tags used by posts with status.
func (a *Adapter) ListTags(ctx context.Context, status content.Status) ([]string, error) {
	posts, err := a.List(ctx, status)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, p := range posts {
		for _, t := range p.Tags {
			set[strings.ToLower(t)] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

// Get returns the post with id.
func (a *Adapter) Get(ctx context.Context, id string) (content.BlogPost, error) {
	var p content.BlogPost
	err := a.do(ctx, "get", func(ctx context.Context, b Backend) error {
		var err error
		p, err = findOne(ctx, b, Filter{Field: "id", Value: id})
		return err
	})
	return p, err
}

// GetBySlug returns the post with slug.
func (a *Adapter) GetBySlug(ctx context.Context, slug string) (content.BlogPost, error) {
	var p content.BlogPost
	err := a.do(ctx, "get_by_slug", func(ctx context.Context, b Backend) error {
		var err error
		p, err = findOne(ctx, b, Filter{Field: "slug", Value: slug})
		return err
	})
	return p, err
}

// Update applies pt to the post with id. The slug follows a changed title,
// UpdatedAt is always refreshed and PublishedAt is set on the first move
// into published.
func (a *Adapter) Update(ctx context.Context, id string, pt content.Patch) (content.BlogPost, error) {
	var next content.BlogPost
	err := a.do(ctx, "update", func(ctx context.Context, b Backend) error {
		cur, err := findOne(ctx, b, Filter{Field: "id", Value: id})
		if err != nil {
			return err
		}
		if pt.Status != nil && !cur.Status.CanTransition(*pt.Status) {
			return &TransitionError{From: cur.Status, To: *pt.Status}
		}
		next = pt.Apply(cur)
		if next.Slug == "" {
			next.Slug = next.ID
		}
		if next.Slug != cur.Slug {
			if err := checkSlug(ctx, b, next.Slug, id); err != nil {
				return err
			}
		}
		now := a.opts.Now().UTC()
		next.UpdatedAt = now
		if next.Status == content.StatusPublished && cur.Status != content.StatusPublished && pt.PublishedAt == nil {
			next.PublishedAt = &now
		}
		rec := postToRecord(next)
		delete(rec, "id")
		// Counters are owned by bump unless the patch sets them.
		if pt.Views == nil {
			delete(rec, "views")
		}
		if pt.Likes == nil {
			delete(rec, "likes")
		}
		return b.Update(ctx, TablePosts, id, rec)
	})
	if err != nil {
		return content.BlogPost{}, err
	}
	return next, nil
}

// Delete removes the post with id.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return a.do(ctx, "delete", func(ctx context.Context, b Backend) error {
		return b.Delete(ctx, TablePosts, id)
	})
}

// AddView increments the view counter of id and returns the new value.
func (a *Adapter) AddView(ctx context.Context, id string) (int64, error) {
	return a.bump(ctx, "add_view", id, "views")
}

// AddLike increments the like counter of id and returns the new value.
func (a *Adapter) AddLike(ctx context.Context, id string) (int64, error) {
	return a.bump(ctx, "add_like", id, "likes")
}

func (a *Adapter) bump(ctx context.Context, op, id, field string) (int64, error) {
	a.counter.Lock()
	defer a.counter.Unlock()
	var n int64
	err := a.do(ctx, op, func(ctx context.Context, b Backend) error {
		recs, err := b.Select(ctx, TablePosts, Filter{Field: "id", Value: id})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return ErrNotFound
		}
		n = asInt64(recs[0][field]) + 1
		return b.Update(ctx, TablePosts, id, Record{field: n})
	})
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return n, nil
}
