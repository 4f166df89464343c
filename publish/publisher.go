// Package publish coordinates saving posts and telling subscribers about
// them. It is the only package that knows both the post store and the
// notification side.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/internal/logging"
	"github.com/eringen/folio/internal/metrics"
	"github.com/eringen/folio/notify"
	"github.com/eringen/folio/subscribers"
)

// PostStore persists posts.
type PostStore interface {
	Create(ctx context.Context, p content.BlogPost) (content.BlogPost, error)
	Get(ctx context.Context, id string) (content.BlogPost, error)
	Update(ctx context.Context, id string, pt content.Patch) (content.BlogPost, error)
	Delete(ctx context.Context, id string) error
}

// Notifier sends templated messages.
type Notifier interface {
	NotifyAll(ctx context.Context, recipients []string, id notify.TemplateID, vars map[string]string) notify.Result
	Notify(ctx context.Context, recipient string, id notify.TemplateID, vars map[string]string) error
}

// Registry is the subscriber list.
type Registry interface {
	Add(ctx context.Context, email, name string) (bool, error)
	Remove(ctx context.Context, email string) (bool, error)
	ListActive(ctx context.Context) ([]string, error)
}

// Config holds publisher settings.
type Config struct {
	// SiteURL prefixes post links in notifications.
	SiteURL string
	// AdminEmail receives contact form messages.
	AdminEmail string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Outcome is the result of a successful save. Notified is nil when no
// notification was sent.
type Outcome struct {
	Post     content.BlogPost `json:"post"`
	Notified *notify.Result   `json:"notified,omitempty"`
}

// Publisher runs the publishing workflow.
type Publisher struct {
	store    PostStore
	notifier Notifier
	registry Registry
	cfg      Config
	log      *slog.Logger
}

// New returns a Publisher.
func New(store PostStore, notifier Notifier, registry Registry, cfg Config) *Publisher {
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Publisher{
		store:    store,
		notifier: notifier,
		registry: registry,
		cfg:      cfg,
		log:      logging.OrDiscard(cfg.Logger).With("component", "publish"),
	}
}

// prepare validates in and returns the normalized body.
func prepare(in content.Input) (string, error) {
	body := in.Body
	if len(in.Blocks) > 0 {
		body = content.Render(in.Blocks)
	}
	body = content.Normalize(body)

	var v validator
	v.require("title", in.Title)
	v.require("body", body)
	v.require("excerpt", in.Excerpt)
	if in.CoverImage != "" && content.SafeURL(in.CoverImage) == "" {
		v.add("cover_image", "must be a relative path or an http(s) URL")
	}
	return body, v.err()
}

// save creates or updates the post described by in with the given status.
// It reports whether the post entered that status with this call.
func (p *Publisher) save(ctx context.Context, in content.Input, status content.Status) (content.BlogPost, bool, error) {
	body, err := prepare(in)
	if err != nil {
		return content.BlogPost{}, false, err
	}

	if in.ID == "" {
		post, err := p.store.Create(ctx, content.BlogPost{
			Title:      strings.TrimSpace(in.Title),
			Body:       body,
			Excerpt:    strings.TrimSpace(in.Excerpt),
			Author:     strings.TrimSpace(in.Author),
			Tags:       in.Tags,
			CoverImage: strings.TrimSpace(in.CoverImage),
			Status:     status,
		})
		if err != nil {
			return content.BlogPost{}, false, fmt.Errorf("creating post: %w", err)
		}
		return post, true, nil
	}

	cur, err := p.store.Get(ctx, in.ID)
	if err != nil {
		return content.BlogPost{}, false, fmt.Errorf("loading post %s: %w", in.ID, err)
	}
	pt := content.PatchFromInput(in, body)
	pt.Status = &status
	post, err := p.store.Update(ctx, in.ID, pt)
	if err != nil {
		return content.BlogPost{}, false, fmt.Errorf("updating post %s: %w", in.ID, err)
	}
	return post, cur.Status != status, nil
}

// Publish validates, stores and publishes a post, then notifies every
// active subscriber when the post has just become public. Notification
// failures are reported in the outcome and never undo the save.
func (p *Publisher) Publish(ctx context.Context, in content.Input) (*Outcome, error) {
	post, entered, err := p.save(ctx, in, content.StatusPublished)
	if err != nil {
		return nil, err
	}
	p.cfg.Metrics.PostSaved(string(post.Status))
	p.log.Info("post published", "id", post.ID, "slug", post.Slug, "new", entered)

	out := &Outcome{Post: post}
	if entered {
		res := p.announce(ctx, post)
		out.Notified = &res
	}
	return out, nil
}

func (p *Publisher) announce(ctx context.Context, post content.BlogPost) notify.Result {
	recipients, err := p.registry.ListActive(ctx)
	if err != nil {
		p.log.Error("loading subscribers for notification", "id", post.ID, "error", err)
		return notify.Result{Succeeded: []string{}, Failed: []notify.Failure{}}
	}
	vars := map[string]string{
		"title":   post.Title,
		"excerpt": post.Excerpt,
		"url":     p.cfg.SiteURL + post.Link(),
		"html":    content.RenderHTML(post.Excerpt),
	}
	res := p.notifier.NotifyAll(ctx, recipients, notify.TemplateBlogNotification, vars)
	if len(res.Failed) > 0 {
		p.log.Warn("some subscribers were not notified", "id", post.ID, "failed", len(res.Failed))
	}
	return res
}

// SaveDraft validates and stores a post as a draft. It never notifies.
func (p *Publisher) SaveDraft(ctx context.Context, in content.Input) (*Outcome, error) {
	post, _, err := p.save(ctx, in, content.StatusDraft)
	if err != nil {
		return nil, err
	}
	p.cfg.Metrics.PostSaved(string(post.Status))
	p.log.Info("draft saved", "id", post.ID, "slug", post.Slug)
	return &Outcome{Post: post}, nil
}

func (p *Publisher) setStatus(ctx context.Context, id string, status content.Status) (content.BlogPost, error) {
	post, err := p.store.Update(ctx, id, content.Patch{Status: &status})
	if err != nil {
		return content.BlogPost{}, fmt.Errorf("setting post %s to %s: %w", id, status, err)
	}
	p.cfg.Metrics.PostSaved(string(status))
	return post, nil
}

// Archive takes a published post off the site.
func (p *Publisher) Archive(ctx context.Context, id string) (content.BlogPost, error) {
	return p.setStatus(ctx, id, content.StatusArchived)
}

// Restore moves an archived post back to draft.
func (p *Publisher) Restore(ctx context.Context, id string) (content.BlogPost, error) {
	return p.setStatus(ctx, id, content.StatusDraft)
}

// Delete removes a post.
func (p *Publisher) Delete(ctx context.Context, id string) error {
	if err := p.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	return nil
}

// Subscribe adds email to the list and sends a welcome message the first
// time it is added. A failed welcome message is logged, not returned.
func (p *Publisher) Subscribe(ctx context.Context, email, name string) (bool, error) {
	added, err := p.registry.Add(ctx, email, name)
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	normalized, _ := subscribers.Normalize(email)
	vars := map[string]string{"name": strings.TrimSpace(name)}
	if err := p.notifier.Notify(ctx, normalized, notify.TemplateWelcome, vars); err != nil {
		p.log.Warn("welcome email failed", "email", normalized, "error", err)
	}
	return true, nil
}

// Unsubscribe removes email from the list.
func (p *Publisher) Unsubscribe(ctx context.Context, email string) (bool, error) {
	return p.registry.Remove(ctx, email)
}

// ContactMessage is a message from the site's contact form.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Contact validates msg and forwards it to the admin address.
func (p *Publisher) Contact(ctx context.Context, msg ContactMessage) error {
	var v validator
	v.require("name", msg.Name)
	v.require("message", msg.Message)
	email, err := subscribers.Normalize(msg.Email)
	if err != nil {
		v.add("email", "must be a valid email address")
	}
	if err := v.err(); err != nil {
		return err
	}
	if p.cfg.AdminEmail == "" {
		return ErrContactDisabled
	}
	err = p.notifier.Notify(ctx, p.cfg.AdminEmail, notify.TemplateContact, map[string]string{
		"from_name":  strings.TrimSpace(msg.Name),
		"from_email": email,
		"message":    strings.TrimSpace(msg.Message),
	})
	if err != nil {
		return fmt.Errorf("forwarding contact message: %w", err)
	}
	return nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
