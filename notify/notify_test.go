package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/folio/internal/sqlitedb"
)

// stubTransport renders through the real templates and fails for the
// recipients listed in fail.
type stubTransport struct {
	templates *Templates
	fail      map[string]error
	onSend    func(to string)

	mu   sync.Mutex
	sent []string
}

func (s *stubTransport) Send(ctx context.Context, to string, id TemplateID, vars map[string]string) error {
	if _, err := s.templates.Render(id, vars); err != nil {
		return err
	}
	if s.onSend != nil {
		s.onSend(to)
	}
	if err := s.fail[to]; err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, to+":"+string(id))
	s.mu.Unlock()
	return nil
}

func newTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	db, err := sqlitedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteLog(db)
}

func newTestDispatcher(t *testing.T, tr *stubTransport, admin string) (*Dispatcher, *SQLiteLog) {
	t.Helper()
	logs := newTestLog(t)
	d := NewDispatcher(tr, tr.templates, logs, Config{Interval: -1, AdminEmail: admin})
	return d, logs
}

var postVars = map[string]string{"title": "Post A", "url": "https://example.com/blog/post-a"}

func TestNotifyAllPartialFailure(t *testing.T) {
	tpl := NewTemplates("Folio", "https://example.com")
	tr := &stubTransport{templates: tpl, fail: map[string]error{"b@x.com": errors.New("mailbox full")}}
	d, logs := newTestDispatcher(t, tr, "")

	res := d.NotifyAll(context.Background(), []string{"a@x.com", "B@x.com ", "c@x.com", "a@x.com"}, TemplateBlogNotification, postVars)

	assert.Equal(t, []string{"a@x.com", "c@x.com"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b@x.com", res.Failed[0].Recipient)
	assert.Contains(t, res.Failed[0].Reason, "mailbox full")

	entries, err := logs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	failed := 0
	for _, e := range entries {
		assert.Equal(t, CategoryBlogNotification, e.Category)
		assert.Equal(t, "New post on Folio: Post A", e.Subject)
		if e.Status == StatusFailed {
			failed++
			assert.Equal(t, "b@x.com", e.Recipient)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestNotifyAllSendsAdminSummary(t *testing.T) {
	tpl := NewTemplates("Folio", "https://example.com")
	tr := &stubTransport{templates: tpl, fail: map[string]error{"b@x.com": errors.New("boom")}}
	d, logs := newTestDispatcher(t, tr, "Admin@x.com")

	res := d.NotifyAll(context.Background(), []string{"a@x.com", "b@x.com"}, TemplateBlogNotification, postVars)
	assert.Len(t, res.Succeeded, 1)

	assert.Contains(t, tr.sent, "admin@x.com:admin_summary")
	entries, err := logs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestNotifyAllSummaryFailureIsIgnored(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := &stubTransport{templates: tpl, fail: map[string]error{"admin@x.com": errors.New("down")}}
	d, _ := newTestDispatcher(t, tr, "admin@x.com")

	res := d.NotifyAll(context.Background(), []string{"a@x.com"}, TemplateBlogNotification, postVars)
	assert.Equal(t, []string{"a@x.com"}, res.Succeeded)
	assert.Empty(t, res.Failed)
}

func TestNotifyAllCancellation(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &stubTransport{templates: tpl, onSend: func(to string) {
		if to == "b@x.com" {
			cancel()
		}
	}}
	d, logs := newTestDispatcher(t, tr, "")

	res := d.NotifyAll(ctx, []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}, TemplateBlogNotification, postVars)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, res.Succeeded)
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.Contains(t, f.Reason, "cancelled")
	}
	assert.Equal(t, 4, len(res.Succeeded)+len(res.Failed))

	entries, err := logs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestNotifyAllTemplateError(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := &stubTransport{templates: tpl}
	d, _ := newTestDispatcher(t, tr, "")

	res := d.NotifyAll(context.Background(), []string{"a@x.com", "b@x.com"}, TemplateBlogNotification, map[string]string{"title": "x"})
	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed[0].Reason, "url")
	assert.Empty(t, tr.sent)
}

func TestNotifyAllSpacing(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := &stubTransport{templates: tpl}
	d := NewDispatcher(tr, tpl, nil, Config{Interval: 30 * time.Millisecond})

	start := time.Now()
	res := d.NotifyAll(context.Background(), []string{"a@x.com", "b@x.com", "c@x.com"}, TemplateBlogNotification, postVars)
	assert.Len(t, res.Succeeded, 3)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNotifySingle(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := &stubTransport{templates: tpl, fail: map[string]error{"bad@x.com": errors.New("rejected")}}
	d, logs := newTestDispatcher(t, tr, "")
	ctx := context.Background()

	require.NoError(t, d.Notify(ctx, "new@x.com", TemplateWelcome, nil))
	err := d.Notify(ctx, "bad@x.com", TemplateWelcome, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)

	err = d.Notify(ctx, "admin@x.com", TemplateContact, map[string]string{"from_name": "Ann"})
	assert.True(t, IsTemplateError(err))

	entries, err := logs.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestNotifyBlankRecipientIsLogged(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := &stubTransport{templates: tpl}
	d, logs := newTestDispatcher(t, tr, "")
	ctx := context.Background()

	err := d.Notify(ctx, "   ", TemplateWelcome, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Empty(t, tr.sent)

	entries, err := logs.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, CategorySubscription, entries[0].Category)
	assert.Contains(t, entries[0].Error, "empty recipient")
}

func TestSendSignsUnsubscribeLink(t *testing.T) {
	tpl := NewTemplates("Folio", "https://example.com")
	var text string
	d := NewDispatcher(renderingTransport{tpl: tpl, text: &text}, tpl, nil, Config{
		Interval:         -1,
		UnsubscribeToken: func(email string) string { return "sig-" + strings.ReplaceAll(email, "@", "-") },
	})

	require.NoError(t, d.Notify(context.Background(), "A@x.com", TemplateWelcome, nil))
	assert.Contains(t, text, "/unsubscribe?email=a%40x.com&token=sig-a-x.com")
}

// renderingTransport keeps the text of the last message it rendered.
type renderingTransport struct {
	tpl  *Templates
	text *string
}

func (r renderingTransport) Send(_ context.Context, _ string, id TemplateID, vars map[string]string) error {
	msg, err := r.tpl.Render(id, vars)
	if err != nil {
		return err
	}
	*r.text = msg.Text
	return nil
}

func TestTemplatesRender(t *testing.T) {
	tpl := NewTemplates("Folio", "https://example.com/")
	msg, err := tpl.Render(TemplateWelcome, map[string]string{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome to Folio", msg.Subject)
	assert.Contains(t, msg.Text, "Hi Ann,")
	assert.Contains(t, msg.Text, "https://example.com/unsubscribe?email=a%40x.com")
	assert.NotContains(t, msg.Text, "&token=")

	msg, err = tpl.Render(TemplateWelcome, map[string]string{"email": "a+b@x.com", "unsubscribe_token": "tok"})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "https://example.com/unsubscribe?email=a%2Bb%40x.com&token=tok")
	assert.Contains(t, msg.HTML, "<title>Welcome to Folio</title>")

	msg, err = tpl.Render(TemplateBlogNotification, map[string]string{
		"email": "a@x.com", "title": "<b>T</b>", "url": "u", "html": "<p>rich</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "<p>rich</p>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;T&lt;/b&gt;")

	_, err = tpl.Render("nope", nil)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Unknown)

	_, err = tpl.Render(TemplateContact, map[string]string{"message": "hi"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{"from_email", "from_name"}, te.Missing)
}

func TestSQLiteLogPrune(t *testing.T) {
	logs := newTestLog(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, logs.Append(ctx, LogEntry{Recipient: "old@x.com", Category: CategoryContact, Template: TemplateContact, Status: StatusSent, CreatedAt: old}))
	require.NoError(t, logs.Append(ctx, LogEntry{Recipient: "new@x.com", Category: CategoryContact, Template: TemplateContact, Status: StatusSent}))

	n, err := logs.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := logs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new@x.com", entries[0].Recipient)
}

func TestStartRetention(t *testing.T) {
	logs := newTestLog(t)
	ctx := context.Background()
	require.NoError(t, logs.Append(ctx, LogEntry{Recipient: "old@x.com", Category: CategoryContact, Template: TemplateContact, Status: StatusSent, CreatedAt: time.Now().Add(-time.Hour)}))

	stop, err := logs.StartRetention(20*time.Millisecond, time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = stop() }()

	assert.Eventually(t, func() bool {
		entries, err := logs.List(ctx, 0)
		return err == nil && len(entries) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLogTransport(t *testing.T) {
	tpl := NewTemplates("Folio", "")
	tr := NewLogTransport(tpl, nil)
	assert.NoError(t, tr.Send(context.Background(), "a@x.com", TemplateWelcome, map[string]string{"email": "a@x.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Send(ctx, "a@x.com", TemplateWelcome, map[string]string{"email": "a@x.com"})
	var te *TransportError
	assert.ErrorAs(t, err, &te)
	assert.True(t, strings.Contains(err.Error(), "canceled"))
}
