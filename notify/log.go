package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/eringen/folio/internal/logging"
)

// Delivery outcomes recorded in the log.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// LogEntry records one send attempt.
type LogEntry struct {
	ID        int64      `json:"id"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Category  Category   `json:"category"`
	Template  TemplateID `json:"template"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// LogStore is the append-only record of send attempts.
type LogStore interface {
	Append(ctx context.Context, e LogEntry) error
	List(ctx context.Context, limit int) ([]LogEntry, error)
}

// SQLiteLog stores entries in the notification_log table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog returns a log over db. The table is created by the sqlitedb
// migrations.
func NewSQLiteLog(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db}
}

// Append inserts e.
func (l *SQLiteLog) Append(ctx context.Context, e LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO notification_log (recipient, subject, category, template, status, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Recipient, e.Subject, string(e.Category), string(e.Template), e.Status, e.Error, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. limit <= 0 means 50.
func (l *SQLiteLog) List(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, recipient, subject, category, template, status, error_msg, created_at
		FROM notification_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notification log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var category, tmpl string
		if err := rows.Scan(&e.ID, &e.Recipient, &e.Subject, &category, &tmpl,
			&e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification log row: %w", err)
		}
		e.Category = Category(category)
		e.Template = TemplateID(tmpl)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification log rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries created before cutoff and returns how many went.
func (l *SQLiteLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM notification_log WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning notification log: %w", err)
	}
	return res.RowsAffected()
}

// StartRetention prunes entries older than keep every interval until the
// returned stop function is called.
func (l *SQLiteLog) StartRetention(every, keep time.Duration, logger *slog.Logger) (stop func() error, err error) {
	logger = logging.OrDiscard(logger)
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := l.Prune(context.Background(), time.Now().Add(-keep))
			if err != nil {
				logger.Error("notification log retention failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("pruned notification log", "deleted", n)
			}
		}),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("scheduling retention job: %w", err)
	}
	s.Start()
	return s.Shutdown, nil
}
