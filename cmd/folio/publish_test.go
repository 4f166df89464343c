package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePostFileFrontMatter(t *testing.T) {
	data := []byte("---\r\ntitle: Post A\r\nexcerpt: Short\r\ntags: [go, web]\r\n---\r\n# Heading\r\n\r\nBody text\r\n")
	in, err := parsePostFile("post.md", data)
	require.NoError(t, err)
	assert.Equal(t, "Post A", in.Title)
	assert.Equal(t, "Short", in.Excerpt)
	assert.Equal(t, []string{"go", "web"}, in.Tags)
	assert.Equal(t, "# Heading\n\nBody text\n", in.Body)
}

func TestParsePostFileJSON(t *testing.T) {
	data := []byte(`{"title":"T","excerpt":"E","blocks":[{"type":"h2","text":"Intro"},{"type":"paragraph","text":"Hi"}]}`)
	in, err := parsePostFile("post.JSON", data)
	require.NoError(t, err)
	assert.Equal(t, "T", in.Title)
	assert.Len(t, in.Blocks, 2)
}

func TestParsePostFileErrors(t *testing.T) {
	_, err := parsePostFile("post.md", []byte("no front matter"))
	assert.Error(t, err)
	_, err = parsePostFile("post.md", []byte("---\ntitle: x\nbody"))
	assert.Error(t, err)
	_, err = parsePostFile("post.json", []byte("{"))
	assert.Error(t, err)
}
