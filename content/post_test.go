package content

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Post A", "post-a"},
		{"  Hello, World!  ", "hello-world"},
		{"Go 1.24 released", "go-1-24-released"},
		{"---", ""},
		{"Ünïcode & stuff", "n-code-stuff"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"go", "web"}, NormalizeTags([]string{" Go ", "web", "GO", ""}))
	assert.Equal(t, []string{"a", "b"}, ParseTags(",a,b,"))
	assert.Equal(t, ",a,b,", JoinTags([]string{"A", "b"}))
	assert.Equal(t, "", JoinTags(nil))
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusPublished, true},
		{StatusPublished, StatusArchived, true},
		{StatusArchived, StatusDraft, true},
		{StatusPublished, StatusPublished, true},
		{StatusDraft, StatusArchived, false},
		{StatusPublished, StatusDraft, false},
		{StatusArchived, StatusPublished, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Published ")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, st)

	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestPatchApplyRecomputesSlug(t *testing.T) {
	p := BlogPost{Title: "Old", Slug: "old", Tags: []string{"x"}}
	title := "New Title"
	got := Patch{Title: &title}.Apply(p)
	assert.Equal(t, "new-title", got.Slug)
	assert.Equal(t, []string{"x"}, got.Tags)
	assert.Equal(t, "old", p.Slug)
}

func TestPatchFromInput(t *testing.T) {
	pt := PatchFromInput(Input{Title: " T ", Excerpt: "e", Tags: []string{"A", "a"}}, "body")
	got := pt.Apply(BlogPost{})
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "t", got.Slug)
	assert.Equal(t, "body", got.Body)
	assert.Equal(t, []string{"a"}, got.Tags)
}

func TestFormatInline(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"**bold**", "<strong>bold</strong>"},
		{"text *italic* more", "text <em>italic</em> more"},
		{"`a*b*c`", "<code>a*b*c</code>"},
		{"[site](https://example.com)", `<a href="https://example.com">site</a>`},
		{"[new](/x)^", `<a href="/x" target="_blank" rel="noopener noreferrer">new</a>`},
		{"[bad](javascript:void)", "bad"},
		{"<script>", "&lt;script&gt;"},
	}
	for _, tt := range tests {
		if got := FormatInline(tt.input); got != tt.want {
			t.Errorf("FormatInline(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	body := Render([]Block{
		Heading{Level: 2, Text: "Hi"},
		Paragraph{Text: "a **b**"},
		Code{Lang: "go", Text: "if a < b {}"},
		List{Items: []string{"x"}, Ordered: true},
		Image{URL: "javascript:x", Alt: "bad"},
	})
	got := RenderHTML(body)
	assert.Contains(t, got, "<h2>Hi</h2>")
	assert.Contains(t, got, "<p>a <strong>b</strong></p>")
	assert.Contains(t, got, `<code class="language-go">if a &lt; b {}</code>`)
	assert.Contains(t, got, "<ol><li>x</li></ol>")
	assert.NotContains(t, got, "<img")
}

func TestHTMLComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML("# Title").Render(context.Background(), &buf))
	assert.Equal(t, "<h1>Title</h1>", buf.String())
}

func TestPlainText(t *testing.T) {
	got := PlainText("# Title\n\nSome **bold**\nline\n\n- a\n- b")
	assert.True(t, strings.HasPrefix(got, "Title\n\nSome **bold** line"))
	assert.Contains(t, got, "a; b")
}
