package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a post from a file",
	Long: `Publish a post from a JSON file shaped like the admin API input, or from a
text file with YAML front matter:

  ---
  title: Post A
  excerpt: A short summary
  tags: [go, web]
  ---
  Body text...

Run it while the server is stopped: the local store allows one process.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringP("file", "f", "", "post file (.json, or text with front matter)")
	publishCmd.Flags().Bool("draft", false, "save as draft without notifying subscribers")
	_ = publishCmd.MarkFlagRequired("file")
}

type frontMatter struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Excerpt    string   `yaml:"excerpt"`
	Author     string   `yaml:"author"`
	Tags       []string `yaml:"tags"`
	CoverImage string   `yaml:"cover_image"`
}

// parsePostFile reads a post from a JSON document or from front matter
// followed by the body.
func parsePostFile(name string, data []byte) (content.Input, error) {
	var in content.Input
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("parsing %s: %w", name, err)
		}
		return in, nil
	}

	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return in, errors.New("post file must start with a --- front matter block")
	}
	rest := data[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return in, errors.New("front matter is not closed with ---")
	}
	var fm frontMatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return in, fmt.Errorf("parsing front matter: %w", err)
	}
	body := rest[end+len("\n---"):]
	body = bytes.TrimPrefix(body, []byte("\n"))

	return content.Input{
		ID:         fm.ID,
		Title:      fm.Title,
		Excerpt:    fm.Excerpt,
		Author:     fm.Author,
		Tags:       fm.Tags,
		CoverImage: fm.CoverImage,
		Body:       string(body),
	}, nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	draft, _ := cmd.Flags().GetBool("draft")

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	in, err := parsePostFile(path, data)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	save := app.Publisher.Publish
	if draft {
		save = app.Publisher.SaveDraft
	}
	out, err := save(cmd.Context(), in)
	if err != nil {
		var ve *publish.ValidationError
		if errors.As(err, &ve) {
			for _, f := range ve.Fields {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.Field, f.Message)
			}
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
