package publish

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/internal/sqlitedb"
	"github.com/eringen/folio/notify"
	"github.com/eringen/folio/store"
	"github.com/eringen/folio/subscribers"
)

type sentMail struct {
	to   string
	tmpl notify.TemplateID
	vars map[string]string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (f *fakeTransport) Send(_ context.Context, to string, id notify.TemplateID, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	f.sent = append(f.sent, sentMail{to: to, tmpl: id, vars: vars})
	return nil
}

func (f *fakeTransport) count(id notify.TemplateID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.tmpl == id {
			n++
		}
	}
	return n
}

type brokenBackend struct{}

func (brokenBackend) Insert(context.Context, string, store.Record) error { return errors.New("dial tcp: refused") }
func (brokenBackend) Select(context.Context, string, store.Filter) ([]store.Record, error) {
	return nil, errors.New("dial tcp: refused")
}
func (brokenBackend) Update(context.Context, string, string, store.Record) error {
	return errors.New("dial tcp: refused")
}
func (brokenBackend) Delete(context.Context, string, string) error { return errors.New("dial tcp: refused") }
func (brokenBackend) Close() error                                 { return nil }

// insertFails is a working remote whose inserts are rejected.
type insertFails struct{ store.Backend }

func (insertFails) Insert(context.Context, string, store.Record) error {
	return errors.New("pq: cannot execute INSERT in a read-only transaction")
}

type fixture struct {
	pub       *Publisher
	store     *store.Adapter
	registry  *subscribers.Registry
	transport *fakeTransport
	logs      *notify.SQLiteLog
}

func newFixture(t *testing.T, remote store.Backend) *fixture {
	t.Helper()
	local, err := store.OpenLocal("")
	require.NoError(t, err)
	adapter, err := store.NewAdapter(local, remote, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	db, err := sqlitedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := subscribers.NewRegistry(db)
	logs := notify.NewSQLiteLog(db)
	tr := &fakeTransport{fail: map[string]bool{}}
	tpl := notify.NewTemplates("Folio", "https://example.com")
	d := notify.NewDispatcher(tr, tpl, logs, notify.Config{Interval: -1})

	pub := New(adapter, d, registry, Config{SiteURL: "https://example.com/", AdminEmail: "admin@example.com"})
	return &fixture{pub: pub, store: adapter, registry: registry, transport: tr, logs: logs}
}

func (f *fixture) subscribe(t *testing.T, emails ...string) {
	t.Helper()
	for _, e := range emails {
		_, err := f.registry.Add(context.Background(), e, "")
		require.NoError(t, err)
	}
}

func postA() content.Input {
	return content.Input{Title: "Post A", Body: "Hello there.", Excerpt: "A short intro", Tags: []string{"Go"}}
}

func TestPublishHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, "one@example.com", "two@example.com")

	out, err := f.pub.Publish(context.Background(), postA())
	require.NoError(t, err)
	assert.Equal(t, "post-a", out.Post.Slug)
	assert.Equal(t, content.StatusPublished, out.Post.Status)
	require.NotNil(t, out.Post.PublishedAt)
	require.NotNil(t, out.Notified)
	assert.Len(t, out.Notified.Succeeded, 2)
	assert.Empty(t, out.Notified.Failed)

	f.transport.mu.Lock()
	first := f.transport.sent[0]
	f.transport.mu.Unlock()
	assert.Equal(t, "https://example.com/blog/post-a", first.vars["url"])

	stored, err := f.store.Get(context.Background(), out.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Post.Title, stored.Title)
}

func TestPublishFromBlocks(t *testing.T) {
	f := newFixture(t, nil)
	in := postA()
	in.Body = ""
	in.Blocks = content.Blocks{content.Heading{Level: 2, Text: "Intro"}, content.Paragraph{Text: "text"}}

	out, err := f.pub.Publish(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "## Intro\n\ntext", out.Post.Body)
	require.NotNil(t, out.Notified)
	assert.Empty(t, out.Notified.Succeeded)
}

func TestPublishValidationListsEveryField(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, "one@example.com")

	_, err := f.pub.Publish(context.Background(), content.Input{Title: "T", Body: "B"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("excerpt"))
	assert.Len(t, ve.Fields, 1)

	_, err = f.pub.Publish(context.Background(), content.Input{Body: "   \n\n"})
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("title"))
	assert.True(t, ve.Has("body"))
	assert.True(t, ve.Has("excerpt"))

	posts, err := f.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Zero(t, f.transport.count(notify.TemplateBlogNotification))
}

func TestSaveDraftNeverNotifies(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, "one@example.com")

	out, err := f.pub.SaveDraft(context.Background(), postA())
	require.NoError(t, err)
	assert.Equal(t, content.StatusDraft, out.Post.Status)
	assert.Nil(t, out.Notified)

	in := postA()
	in.ID = out.Post.ID
	in.Body = "Edited body."
	out, err = f.pub.SaveDraft(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Edited body.", out.Post.Body)
	assert.Zero(t, f.transport.count(notify.TemplateBlogNotification))
}

func TestPublishDraftNotifiesOnceThenEditsStayQuiet(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, "one@example.com")
	ctx := context.Background()

	draft, err := f.pub.SaveDraft(ctx, postA())
	require.NoError(t, err)

	in := postA()
	in.ID = draft.Post.ID
	out, err := f.pub.Publish(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, out.Notified)
	assert.Len(t, out.Notified.Succeeded, 1)

	in.Title = "Post A, revised"
	out, err = f.pub.Publish(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, out.Notified)
	assert.Equal(t, "post-a-revised", out.Post.Slug)
	assert.Equal(t, 1, f.transport.count(notify.TemplateBlogNotification))
}

func TestPublishWithDegradedStore(t *testing.T) {
	f := newFixture(t, brokenBackend{})
	f.subscribe(t, "one@example.com")

	out, err := f.pub.Publish(context.Background(), postA())
	require.NoError(t, err)
	require.NotNil(t, out.Notified)
	assert.Len(t, out.Notified.Succeeded, 1)

	got, err := f.store.Get(context.Background(), out.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, "post-a", got.Slug)
	assert.Equal(t, store.ModeConfigured, f.store.Mode())
}

func TestPublishWhenOnlyRemoteInsertFails(t *testing.T) {
	remote, err := store.OpenSQL("sqlite", ":memory:")
	require.NoError(t, err)
	f := newFixture(t, insertFails{remote})
	f.subscribe(t, "one@example.com")
	ctx := context.Background()

	out, err := f.pub.Publish(ctx, postA())
	require.NoError(t, err)
	require.NotNil(t, out.Notified)
	assert.Len(t, out.Notified.Succeeded, 1)

	got, err := f.store.Get(ctx, out.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusPublished, got.Status)
	_, err = f.store.GetBySlug(ctx, "post-a")
	require.NoError(t, err)
	published, err := f.store.List(ctx, content.StatusPublished)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, out.Post.ID, published[0].ID)

	in := postA()
	in.ID = out.Post.ID
	in.Title = "Post A, revised"
	out, err = f.pub.Publish(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, out.Notified)
	assert.Equal(t, "post-a-revised", out.Post.Slug)

	_, err = f.pub.Archive(ctx, out.Post.ID)
	require.NoError(t, err)
	require.NoError(t, f.pub.Delete(ctx, out.Post.ID))
	_, err = f.store.Get(ctx, out.Post.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublishKeepsPostWhenSendsFail(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, "one@example.com", "two@example.com")
	f.transport.fail["two@example.com"] = true

	out, err := f.pub.Publish(context.Background(), postA())
	require.NoError(t, err)
	assert.Len(t, out.Notified.Succeeded, 1)
	require.Len(t, out.Notified.Failed, 1)
	assert.Equal(t, "two@example.com", out.Notified.Failed[0].Recipient)

	_, err = f.store.Get(context.Background(), out.Post.ID)
	assert.NoError(t, err)

	entries, err := f.logs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPublishSlugConflict(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.pub.Publish(context.Background(), postA())
	require.NoError(t, err)
	_, err = f.pub.Publish(context.Background(), postA())
	var ce *store.ConflictError
	assert.ErrorAs(t, err, &ce)
}

func TestArchiveRestoreDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	out, err := f.pub.Publish(ctx, postA())
	require.NoError(t, err)

	_, err = f.pub.Restore(ctx, out.Post.ID)
	var te *store.TransitionError
	require.ErrorAs(t, err, &te)

	post, err := f.pub.Archive(ctx, out.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusArchived, post.Status)

	post, err = f.pub.Restore(ctx, out.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusDraft, post.Status)

	require.NoError(t, f.pub.Delete(ctx, out.Post.ID))
	assert.ErrorIs(t, f.pub.Delete(ctx, out.Post.ID), store.ErrNotFound)
}

func TestSubscribeSendsWelcomeOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	added, err := f.pub.Subscribe(ctx, "New@Example.com", "Ann")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = f.pub.Subscribe(ctx, "new@example.com", "Ann")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, f.transport.count(notify.TemplateWelcome))

	_, err = f.pub.Subscribe(ctx, "not-an-email", "")
	assert.ErrorIs(t, err, subscribers.ErrInvalidEmail)

	removed, err := f.pub.Unsubscribe(ctx, "new@example.com")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestSubscribeWelcomeFailureIsNotAnError(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.fail["new@example.com"] = true
	added, err := f.pub.Subscribe(context.Background(), "new@example.com", "")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestContact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.pub.Contact(ctx, ContactMessage{Email: "bad"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("name"))
	assert.True(t, ve.Has("email"))
	assert.True(t, ve.Has("message"))

	require.NoError(t, f.pub.Contact(ctx, ContactMessage{Name: "Ann", Email: "ann@example.com", Message: "Hi!"}))
	assert.Equal(t, 1, f.transport.count(notify.TemplateContact))

	noAdmin := New(f.store, nil, f.registry, Config{})
	err = noAdmin.Contact(ctx, ContactMessage{Name: "Ann", Email: "ann@example.com", Message: "Hi!"})
	assert.ErrorIs(t, err, ErrContactDisabled)
}
