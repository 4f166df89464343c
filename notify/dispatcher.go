// Package notify renders and sends templated email, fans a message out to
// many recipients with per-recipient failure isolation, and keeps an
// append-only log of every attempt.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/eringen/folio/internal/logging"
	"github.com/eringen/folio/internal/metrics"
)

// Failure is one recipient that did not get the message.
type Failure struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

// Result summarizes a fan-out.
type Result struct {
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Config tunes a Dispatcher. Zero durations get defaults.
type Config struct {
	// Interval spaces consecutive sends. Default 250ms; negative disables
	// spacing.
	Interval time.Duration
	// SendTimeout bounds each send. Default 30s.
	SendTimeout time.Duration
	// AdminEmail receives a summary after each fan-out when set.
	AdminEmail string
	// UnsubscribeToken signs the unsubscribe link of each recipient.
	UnsubscribeToken func(email string) string
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// Dispatcher sends templated messages and records every attempt.
type Dispatcher struct {
	transport Transport
	logs      LogStore
	templates *Templates
	cfg       Config
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewDispatcher returns a Dispatcher. logs may be nil.
func NewDispatcher(transport Transport, templates *Templates, logs LogStore, cfg Config) *Dispatcher {
	if cfg.Interval == 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Dispatcher{
		transport: transport,
		logs:      logs,
		templates: templates,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		log:       logging.OrDiscard(cfg.Logger).With("component", "notify"),
	}
}

// NotifyAll sends id to every recipient, one at a time. A failing recipient
// never stops the others and never makes NotifyAll return an error. When ctx
// is cancelled the remaining recipients are recorded as failed.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []string, id TemplateID, vars map[string]string) Result {
	res := Result{Succeeded: []string{}, Failed: []Failure{}}
	list := dedupe(recipients)

	if err := d.templates.Check(id, vars, "email"); err != nil {
		for _, to := range list {
			res.Failed = append(res.Failed, Failure{Recipient: to, Reason: err.Error()})
			d.record(ctx, to, id, "", err)
		}
		d.summarize(ctx, id, vars, res)
		return res
	}

	for i, to := range list {
		if err := d.limiter.Wait(ctx); err != nil {
			reason := cancelReason(ctx, err)
			for _, rest := range list[i:] {
				res.Failed = append(res.Failed, Failure{Recipient: rest, Reason: reason})
				d.record(ctx, rest, id, "", errors.New(reason))
			}
			d.log.Warn("notification fan-out cancelled", "template", string(id), "remaining", len(list)-i)
			break
		}
		if err := d.send(ctx, to, id, vars); err != nil {
			res.Failed = append(res.Failed, Failure{Recipient: to, Reason: err.Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, to)
	}

	d.log.Info("notification fan-out finished", "template", string(id),
		"succeeded", len(res.Succeeded), "failed", len(res.Failed))
	d.summarize(ctx, id, vars, res)
	return res
}

// Notify sends id to a single recipient and logs the attempt.
func (d *Dispatcher) Notify(ctx context.Context, recipient string, id TemplateID, vars map[string]string) error {
	to := normalizeRecipient(recipient)
	if to == "" {
		err := &TransportError{Recipient: recipient, Err: errors.New("empty recipient")}
		d.record(ctx, recipient, id, "", err)
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		err = &TransportError{Recipient: to, Err: err}
		d.record(ctx, to, id, "", err)
		return err
	}
	return d.send(ctx, to, id, vars)
}

// send delivers one message under SendTimeout and records the attempt.
func (d *Dispatcher) send(ctx context.Context, to string, id TemplateID, vars map[string]string) error {
	v := make(map[string]string, len(vars)+2)
	for k, val := range vars {
		v[k] = val
	}
	v["email"] = to
	if d.cfg.UnsubscribeToken != nil {
		v["unsubscribe_token"] = d.cfg.UnsubscribeToken(to)
	}

	subject := ""
	if msg, err := d.templates.Render(id, v); err == nil {
		subject = msg.Subject
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.transport.Send(sctx, to, id, v)
	cancel()
	if err != nil {
		var te *TemplateError
		if !errors.As(err, &te) {
			var tr *TransportError
			if !errors.As(err, &tr) {
				err = &TransportError{Recipient: to, Err: err}
			}
		}
		d.log.Warn("notification failed", "to", to, "template", string(id), "error", err)
	}
	d.record(ctx, to, id, subject, err)
	return err
}

// summarize sends the admin summary for a finished fan-out. Its failure is
// logged and otherwise ignored.
func (d *Dispatcher) summarize(ctx context.Context, id TemplateID, vars map[string]string, res Result) {
	if d.cfg.AdminEmail == "" || id == TemplateAdminSummary {
		return
	}
	lines := make([]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		lines = append(lines, f.Recipient+": "+f.Reason)
	}
	summary := map[string]string{
		"template":  string(id),
		"title":     vars["title"],
		"succeeded": strconv.Itoa(len(res.Succeeded)),
		"failed":    strconv.Itoa(len(res.Failed)),
		"failures":  strings.Join(lines, "\n"),
	}
	// The summary goes out even when the fan-out itself was cancelled.
	if err := d.send(context.WithoutCancel(ctx), normalizeRecipient(d.cfg.AdminEmail), TemplateAdminSummary, summary); err != nil {
		d.log.Error("admin summary failed", "error", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, to string, id TemplateID, subject string, sendErr error) {
	status := StatusSent
	errMsg := ""
	if sendErr != nil {
		status = StatusFailed
		errMsg = sendErr.Error()
	}
	category := d.templates.Category(id)
	d.cfg.Metrics.Notification(string(category), status)
	if d.logs == nil {
		return
	}
	entry := LogEntry{
		Recipient: to,
		Subject:   subject,
		Category:  category,
		Template:  id,
		Status:    status,
		Error:     errMsg,
		CreatedAt: d.cfg.Now(),
	}
	if err := d.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		d.log.Error("appending notification log", "to", to, "error", err)
	}
}

func cancelReason(ctx context.Context, err error) string {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Sprintf("cancelled: %v", cerr)
	}
	return fmt.Sprintf("cancelled: %v", err)
}

func normalizeRecipient(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func dedupe(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = normalizeRecipient(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
