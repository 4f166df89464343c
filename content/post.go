// Package content defines the blog post model, the typed content blocks a post
// body is composed of, and the helpers that derive slugs and HTML from them.
package content

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus converts s to a Status. An empty string is not a valid status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown post status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a post in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusDraft:
		return next == StatusPublished
	case StatusPublished:
		return next == StatusArchived
	case StatusArchived:
		return next == StatusDraft
	}
	return false
}

// BlogPost is the stored form of a post.
type BlogPost struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Excerpt     string     `json:"excerpt"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags"`
	CoverImage  string     `json:"cover_image,omitempty"`
	Status      Status     `json:"status"`
	Views       int64      `json:"views"`
	Likes       int64      `json:"likes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Link returns the site-relative URL of the post.
func (p BlogPost) Link() string {
	return "/blog/" + p.Slug
}

// Input is what an editor submits when creating or editing a post.
// Body and Blocks are alternatives; Blocks wins when both are set.
type Input struct {
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Blocks     Blocks   `json:"blocks,omitempty"`
	Excerpt    string   `json:"excerpt"`
	Author     string   `json:"author,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CoverImage string   `json:"cover_image,omitempty"`
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Body        *string
	Excerpt     *string
	Author      *string
	Tags        []string
	SetTags     bool
	CoverImage  *string
	Status      *Status
	PublishedAt *time.Time
	Views       *int64
	Likes       *int64
}

// PatchFromInput builds a patch that overwrites every editable field of a
// post with the values in in. body is the already normalized body.
func PatchFromInput(in Input, body string) Patch {
	title := strings.TrimSpace(in.Title)
	excerpt := strings.TrimSpace(in.Excerpt)
	author := strings.TrimSpace(in.Author)
	cover := strings.TrimSpace(in.CoverImage)
	return Patch{
		Title:      &title,
		Body:       &body,
		Excerpt:    &excerpt,
		Author:     &author,
		Tags:       NormalizeTags(in.Tags),
		SetTags:    true,
		CoverImage: &cover,
	}
}

// Apply returns a copy of p with the patch applied. The slug is recomputed
// when the title is part of the patch.
func (pt Patch) Apply(p BlogPost) BlogPost {
	if pt.Title != nil {
		p.Title = *pt.Title
		p.Slug = Slugify(p.Title)
	}
	if pt.Body != nil {
		p.Body = *pt.Body
	}
	if pt.Excerpt != nil {
		p.Excerpt = *pt.Excerpt
	}
	if pt.Author != nil {
		p.Author = *pt.Author
	}
	if pt.SetTags {
		p.Tags = NormalizeTags(pt.Tags)
	}
	if pt.CoverImage != nil {
		p.CoverImage = *pt.CoverImage
	}
	if pt.Status != nil {
		p.Status = *pt.Status
	}
	if pt.PublishedAt != nil {
		t := *pt.PublishedAt
		p.PublishedAt = &t
	}
	if pt.Views != nil {
		p.Views = *pt.Views
	}
	if pt.Likes != nil {
		p.Likes = *pt.Likes
	}
	return p
}
