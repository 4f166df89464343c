package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/eringen/folio/content"
)

// TablePosts is the table (or key space) holding blog posts.
const TablePosts = "posts"

// Record is one row as exchanged with a Backend. Values are strings, int64,
// []string or nil. Timestamps travel as RFC 3339 strings.
type Record map[string]any

// Filter selects records whose Field equals Value. The zero Filter matches
// every record.
type Filter struct {
	Field string
	Value any
}

// Backend is the CRUD shape shared by the remote and local stores.
// Update and Delete return ErrNotFound when id does not exist.
type Backend interface {
	Insert(ctx context.Context, table string, rec Record) error
	Select(ctx context.Context, table string, f Filter) ([]Record, error)
	Update(ctx context.Context, table, id string, rec Record) error
	Delete(ctx context.Context, table, id string) error
	Close() error
}

func postToRecord(p content.BlogPost) Record {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := Record{
		"id":           p.ID,
		"slug":         p.Slug,
		"title":        p.Title,
		"body":         p.Body,
		"excerpt":      p.Excerpt,
		"author":       p.Author,
		"tags":         tags,
		"cover_image":  p.CoverImage,
		"status":       string(p.Status),
		"views":        p.Views,
		"likes":        p.Likes,
		"created_at":   formatTime(p.CreatedAt),
		"updated_at":   formatTime(p.UpdatedAt),
		"published_at": nil,
	}
	if p.PublishedAt != nil {
		rec["published_at"] = formatTime(*p.PublishedAt)
	}
	return rec
}

func recordToPost(rec Record) (content.BlogPost, error) {
	p := content.BlogPost{
		ID:         asString(rec["id"]),
		Slug:       asString(rec["slug"]),
		Title:      asString(rec["title"]),
		Body:       asString(rec["body"]),
		Excerpt:    asString(rec["excerpt"]),
		Author:     asString(rec["author"]),
		Tags:       asStrings(rec["tags"]),
		CoverImage: asString(rec["cover_image"]),
		Status:     content.Status(asString(rec["status"])),
		Views:      asInt64(rec["views"]),
		Likes:      asInt64(rec["likes"]),
	}
	var err error
	if p.CreatedAt, err = parseTime(rec["created_at"]); err != nil {
		return p, fmt.Errorf("post %s: created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(rec["updated_at"]); err != nil {
		return p, fmt.Errorf("post %s: updated_at: %w", p.ID, err)
	}
	if v := asString(rec["published_at"]); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return p, fmt.Errorf("post %s: published_at: %w", p.ID, err)
		}
		p.PublishedAt = &t
	}
	return p, nil
}

func recordsToPosts(recs []Record) ([]content.BlogPost, error) {
	posts := make([]content.BlogPost, 0, len(recs))
	for _, rec := range recs {
		p, err := recordToPost(rec)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	}
	s := asString(v)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func asStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, x := range s {
			out = append(out, asString(x))
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
		return content.ParseTags(s)
	}
	return []string{}
}

// matches reports whether rec satisfies f.
func matches(rec Record, f Filter) bool {
	if f.Field == "" {
		return true
	}
	return asString(rec[f.Field]) == asString(f.Value)
}
