package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // default remote driver
)

type columnKind int

const (
	colText columnKind = iota
	colInt
	colJSON
	colNullText
)

type column struct {
	name string
	kind columnKind
}

// tables whitelists the columns each table exposes, in storage order.
var tables = map[string][]column{
	TablePosts: {
		{"id", colText},
		{"slug", colText},
		{"title", colText},
		{"body", colText},
		{"excerpt", colText},
		{"author", colText},
		{"tags", colJSON},
		{"cover_image", colText},
		{"status", colText},
		{"views", colInt},
		{"likes", colInt},
		{"created_at", colText},
		{"updated_at", colText},
		{"published_at", colNullText},
	},
}

// SQLClient is the remote Backend over database/sql.
type SQLClient struct {
	db     *sql.DB
	dollar bool
}

// OpenSQL opens the remote database. For the sqlite driver the data directory
// is created and WAL pragmas are applied. The posts schema is created when
// missing.
func OpenSQL(driver, dsn string) (*SQLClient, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if driver == "sqlite" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`
			PRAGMA journal_mode=WAL;
			PRAGMA busy_timeout=5000;
			PRAGMA synchronous=NORMAL;
		`); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	c, err := NewSQLClient(db, driver == "postgres" || driver == "pgx")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewSQLClient wraps an open database. dollar selects $n placeholders
// instead of ?.
func NewSQLClient(db *sql.DB, dollar bool) (*SQLClient, error) {
	c := &SQLClient{db: db, dollar: dollar}
	if err := c.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("creating posts schema: %w", err)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *SQLClient) Close() error {
	return c.db.Close()
}

func (c *SQLClient) ensureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS posts (
    id           TEXT PRIMARY KEY,
    slug         TEXT NOT NULL,
    title        TEXT NOT NULL,
    body         TEXT NOT NULL,
    excerpt      TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '[]',
    cover_image  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    views        INTEGER NOT NULL DEFAULT 0,
    likes        INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    published_at TEXT
)`)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DROP INDEX IF EXISTS idx_posts_slug`); err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_slug_unique ON posts(slug)`)
	return err
}

// slugConflict maps a unique violation on the slug index to a ConflictError.
// sqlite names the column (posts.slug), postgres names the index.
func slugConflict(err error, rec Record) error {
	msg := err.Error()
	if !strings.Contains(msg, "posts.slug") && !strings.Contains(msg, "idx_posts_slug_unique") {
		return nil
	}
	return &ConflictError{Slug: asString(rec["slug"])}
}

func (c *SQLClient) placeholder(n int) string {
	if c.dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func lookupColumns(table string) ([]column, error) {
	cols, ok := tables[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

func hasColumn(cols []column, name string) (column, bool) {
	for _, col := range cols {
		if col.name == name {
			return col, true
		}
	}
	return column{}, false
}

func encodeValue(col column, v any) (any, error) {
	switch col.kind {
	case colJSON:
		b, err := json.Marshal(asStrings(v))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case colInt:
		return asInt64(v), nil
	case colNullText:
		if s := asString(v); s != "" {
			return s, nil
		}
		return nil, nil
	default:
		return asString(v), nil
	}
}

// Insert adds rec as a new row.
func (c *SQLClient) Insert(ctx context.Context, table string, rec Record) error {
	cols, err := lookupColumns(table)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cols))
	marks := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v, err := encodeValue(col, rec[col.name])
		if err != nil {
			return fmt.Errorf("encoding %s: %w", col.name, err)
		}
		names = append(names, col.name)
		marks = append(marks, c.placeholder(len(args)+1))
		args = append(args, v)
	}
	query := "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		if conflict := slugConflict(err, rec); conflict != nil {
			return conflict
		}
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

// Select returns the rows matching f.
func (c *SQLClient) Select(ctx context.Context, table string, f Filter) ([]Record, error) {
	cols, err := lookupColumns(table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.name
	}
	query := "SELECT " + strings.Join(names, ", ") + " FROM " + table
	var args []any
	if f.Field != "" {
		col, ok := hasColumn(cols, f.Field)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", f.Field)
		}
		v, err := encodeValue(col, f.Value)
		if err != nil {
			return nil, err
		}
		query += " WHERE " + col.name + " = " + c.placeholder(1)
		args = append(args, v)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		dest := make([]any, len(cols))
		for i, col := range cols {
			switch col.kind {
			case colInt:
				dest[i] = new(int64)
			case colNullText:
				dest[i] = new(sql.NullString)
			default:
				dest[i] = new(string)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			switch v := dest[i].(type) {
			case *int64:
				rec[col.name] = *v
			case *sql.NullString:
				if v.Valid {
					rec[col.name] = v.String
				} else {
					rec[col.name] = nil
				}
			case *string:
				if col.kind == colJSON {
					rec[col.name] = asStrings(*v)
				} else {
					rec[col.name] = *v
				}
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", table, err)
	}
	return out, nil
}

// Update overwrites the columns present in rec for the row with id.
func (c *SQLClient) Update(ctx context.Context, table, id string, rec Record) error {
	cols, err := lookupColumns(table)
	if err != nil {
		return err
	}
	var sets []string
	var args []any
	for _, col := range cols {
		v, ok := rec[col.name]
		if !ok || col.name == "id" {
			continue
		}
		enc, err := encodeValue(col, v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", col.name, err)
		}
		args = append(args, enc)
		sets = append(sets, col.name+" = "+c.placeholder(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = " + c.placeholder(len(args))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		if conflict := slugConflict(err, rec); conflict != nil {
			return conflict
		}
		return fmt.Errorf("updating %s: %w", table, err)
	}
	return requireRow(res)
}

// Delete removes the row with id.
func (c *SQLClient) Delete(ctx context.Context, table, id string) error {
	if _, err := lookupColumns(table); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = "+c.placeholder(1), id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
