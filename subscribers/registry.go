// Package subscribers keeps the list of email subscribers. It only stores
// state; sending welcome mail is up to the caller.
package subscribers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ErrInvalidEmail is returned for addresses that do not parse.
var ErrInvalidEmail = errors.New("invalid email address")

// ErrNotFound is returned by Get for unknown addresses.
var ErrNotFound = errors.New("subscriber not found")

// Subscriber is one entry of the list, keyed by normalized email.
type Subscriber struct {
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}

// Registry stores subscribers in the subscribers table.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

// NewRegistry returns a Registry over db.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// Normalize trims and lowercases email and checks that it is a bare address.
func Normalize(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// Add subscribes email. It reports false when the address is already active.
// An inactive address is reactivated and counts as added.
func (r *Registry) Add(ctx context.Context, email, name string) (bool, error) {
	email, err := Normalize(email)
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM subscribers WHERE email = ?`, email).Scan(&active)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subscribers (email, name, active, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)`, email, name, now, now); err != nil {
			return false, fmt.Errorf("inserting subscriber: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("looking up subscriber: %w", err)
	case active:
		return false, nil
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscribers
			SET active = 1, unsubscribed_at = NULL, updated_at = ?,
			    name = CASE WHEN ? <> '' THEN ? ELSE name END
			WHERE email = ?`, now, name, name, email); err != nil {
			return false, fmt.Errorf("reactivating subscriber: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Remove unsubscribes email. It reports false when the address was not an
// active subscriber.
func (r *Registry) Remove(ctx context.Context, email string) (bool, error) {
	email, err := Normalize(email)
	if err != nil {
		return false, err
	}
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET active = 0, unsubscribed_at = ?, updated_at = ?
		WHERE email = ? AND active = 1`, now, now, email)
	if err != nil {
		return false, fmt.Errorf("removing subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActive returns the active addresses, oldest subscription first.
func (r *Registry) ListActive(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT email FROM subscribers WHERE active = 1 ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()
	emails := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

const subscriberColumns = `email, name, active, created_at, updated_at, unsubscribed_at`

func scanSubscriber(row interface{ Scan(...any) error }) (Subscriber, error) {
	var s Subscriber
	var unsub sql.NullTime
	if err := row.Scan(&s.Email, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt, &unsub); err != nil {
		return s, err
	}
	if unsub.Valid {
		t := unsub.Time
		s.UnsubscribedAt = &t
	}
	return s, nil
}

// Get returns the entry for email.
func (r *Registry) Get(ctx context.Context, email string) (Subscriber, error) {
	email, err := Normalize(email)
	if err != nil {
		return Subscriber{}, err
	}
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	return s, err
}

// List returns every entry, active or not, oldest first.
func (r *Registry) List(ctx context.Context) ([]Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()
	var out []Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of active and total entries.
func (r *Registry) Count(ctx context.Context) (active, total int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(active), 0), COUNT(*) FROM subscribers`).Scan(&active, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("counting subscribers: %w", err)
	}
	return active, total, nil
}
