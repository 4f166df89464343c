package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BlockKind names a block type in its JSON form.
type BlockKind string

const (
	KindHeading   BlockKind = "heading"
	KindParagraph BlockKind = "paragraph"
	KindQuote     BlockKind = "quote"
	KindCode      BlockKind = "code"
	KindList      BlockKind = "list"
	KindImage     BlockKind = "image"
)

// Block is one typed unit of post content. The set of implementations is
// closed: Heading, Paragraph, Quote, Code, List and Image.
type Block interface {
	Kind() BlockKind
	// markdown returns the serialized form, or "" when the block is blank.
	markdown() string
}

// Heading is a section title of level 1 to 3.
type Heading struct {
	Level int
	Text  string
}

// Paragraph is a run of prose. Line breaks inside Text are kept.
type Paragraph struct {
	Text string
}

// Quote is a block quotation.
type Quote struct {
	Text string
}

// Code is a fenced code sample with an optional language tag.
type Code struct {
	Lang string
	Text string
}

// List is a bulleted or numbered list.
type List struct {
	Items   []string
	Ordered bool
}

// Image is a standalone image reference.
type Image struct {
	URL string
	Alt string
}

func (Heading) Kind() BlockKind   { return KindHeading }
func (Paragraph) Kind() BlockKind { return KindParagraph }
func (Quote) Kind() BlockKind     { return KindQuote }
func (Code) Kind() BlockKind      { return KindCode }
func (List) Kind() BlockKind      { return KindList }
func (Image) Kind() BlockKind     { return KindImage }

func (h Heading) markdown() string {
	text := singleLine(h.Text)
	if text == "" {
		return ""
	}
	level := h.Level
	if level < 1 {
		level = 1
	}
	if level > 3 {
		level = 3
	}
	return strings.Repeat("#", level) + " " + text
}

func (p Paragraph) markdown() string {
	var lines []string
	for _, l := range strings.Split(p.Text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func (q Quote) markdown() string {
	if strings.TrimSpace(q.Text) == "" {
		return ""
	}
	lines := strings.Split(q.Text, "\n")
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}

func (c Code) markdown() string {
	if strings.TrimSpace(c.Text) == "" {
		return ""
	}
	return "```" + singleLine(c.Lang) + "\n" + c.Text + "\n```"
}

func (l List) markdown() string {
	var lines []string
	n := 0
	for _, item := range l.Items {
		item = singleLine(item)
		if item == "" {
			continue
		}
		n++
		if l.Ordered {
			lines = append(lines, strconv.Itoa(n)+". "+item)
		} else {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}

var imageAltCleaner = strings.NewReplacer("]", "", "\n", " ", "\r", "")

func (im Image) markdown() string {
	url := strings.Map(func(r rune) rune {
		if r == ')' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, im.URL)
	if url == "" {
		return ""
	}
	return "![" + imageAltCleaner.Replace(im.Alt) + "](" + url + ")"
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Render serializes blocks into a single body string. Blank blocks are
// skipped and the rest are separated by one empty line.
func Render(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if s := b.markdown(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Normalize rewrites body into canonical serialized form. It accepts both
// text produced by Render and free text, and Normalize(Normalize(s)) equals
// Normalize(s) for every s.
func Normalize(body string) string {
	return Render(Parse(body))
}

var (
	reHeadingLine = regexp.MustCompile(`^(#{1,3}) (.*\S)$`)
	reOrderedLine = regexp.MustCompile(`^\d+\.\s+(.*\S)$`)
	reImageLine   = regexp.MustCompile(`^!\[([^\]\n]*)\]\(([^)\s]+)\)$`)
)

func unorderedItem(trimmed string) (string, bool) {
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		return strings.TrimSpace(trimmed[2:]), true
	}
	return "", false
}

func orderedItem(trimmed string) (string, bool) {
	m := reOrderedLine.FindStringSubmatch(trimmed)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func startsBlock(trimmed string) bool {
	if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, ">") {
		return true
	}
	if _, ok := unorderedItem(trimmed); ok {
		return true
	}
	if _, ok := orderedItem(trimmed); ok {
		return true
	}
	return reHeadingLine.MatchString(trimmed) || reImageLine.MatchString(trimmed)
}

// Parse reads a serialized body back into blocks. Lines that match no other
// block form are collected into paragraphs.
func Parse(body string) []Block {
	lines := strings.Split(strings.ReplaceAll(body, "\r", ""), "\n")
	var blocks []Block
	for i := 0; i < len(lines); {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case trimmed == "":
			i++
		case strings.HasPrefix(trimmed, "```"):
			lang := strings.TrimSpace(trimmed[3:])
			i++
			var code []string
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				code = append(code, lines[i])
				i++
			}
			i++ // closing fence, or past the end
			blocks = append(blocks, Code{Lang: lang, Text: strings.Join(code, "\n")})
		case strings.HasPrefix(trimmed, ">"):
			var quote []string
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if !strings.HasPrefix(t, ">") {
					break
				}
				quote = append(quote, strings.TrimSpace(t[1:]))
				i++
			}
			blocks = append(blocks, Quote{Text: strings.Join(quote, "\n")})
		case reHeadingLine.MatchString(trimmed):
			m := reHeadingLine.FindStringSubmatch(trimmed)
			blocks = append(blocks, Heading{Level: len(m[1]), Text: strings.TrimSpace(m[2])})
			i++
		case reImageLine.MatchString(trimmed):
			m := reImageLine.FindStringSubmatch(trimmed)
			blocks = append(blocks, Image{URL: m[2], Alt: m[1]})
			i++
		default:
			if _, ok := unorderedItem(trimmed); ok {
				var items []string
				for i < len(lines) {
					item, ok := unorderedItem(strings.TrimSpace(lines[i]))
					if !ok {
						break
					}
					items = append(items, item)
					i++
				}
				blocks = append(blocks, List{Items: items})
				continue
			}
			if _, ok := orderedItem(trimmed); ok {
				var items []string
				for i < len(lines) {
					item, ok := orderedItem(strings.TrimSpace(lines[i]))
					if !ok {
						break
					}
					items = append(items, item)
					i++
				}
				blocks = append(blocks, List{Items: items, Ordered: true})
				continue
			}
			var para []string
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == "" || (len(para) > 0 && startsBlock(t)) {
					break
				}
				para = append(para, t)
				i++
			}
			blocks = append(blocks, Paragraph{Text: strings.Join(para, "\n")})
		}
	}
	return blocks
}

// Blocks is a block sequence with a tagged JSON encoding:
//
//	[{"type":"heading","level":2,"text":"Intro"},{"type":"list","items":["a","b"]}]
type Blocks []Block

type blockJSON struct {
	Type    BlockKind `json:"type"`
	Level   int       `json:"level,omitempty"`
	Text    string    `json:"text,omitempty"`
	Lang    string    `json:"lang,omitempty"`
	Items   []string  `json:"items,omitempty"`
	Ordered bool      `json:"ordered,omitempty"`
	URL     string    `json:"url,omitempty"`
	Alt     string    `json:"alt,omitempty"`
}

// MarshalJSON encodes each block with its type tag.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]blockJSON, 0, len(bs))
	for _, b := range bs {
		switch v := b.(type) {
		case Heading:
			out = append(out, blockJSON{Type: KindHeading, Level: v.Level, Text: v.Text})
		case Paragraph:
			out = append(out, blockJSON{Type: KindParagraph, Text: v.Text})
		case Quote:
			out = append(out, blockJSON{Type: KindQuote, Text: v.Text})
		case Code:
			out = append(out, blockJSON{Type: KindCode, Lang: v.Lang, Text: v.Text})
		case List:
			out = append(out, blockJSON{Type: KindList, Items: v.Items, Ordered: v.Ordered})
		case Image:
			out = append(out, blockJSON{Type: KindImage, URL: v.URL, Alt: v.Alt})
		case nil:
		default:
			return nil, fmt.Errorf("content: unsupported block %T", b)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged blocks. "h1", "h2" and "h3" are accepted as
// shorthands for headings.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raw []blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Blocks, 0, len(raw))
	for i, r := range raw {
		switch r.Type {
		case KindHeading:
			out = append(out, Heading{Level: r.Level, Text: r.Text})
		case "h1", "h2", "h3":
			out = append(out, Heading{Level: int(r.Type[1] - '0'), Text: r.Text})
		case KindParagraph:
			out = append(out, Paragraph{Text: r.Text})
		case KindQuote:
			out = append(out, Quote{Text: r.Text})
		case KindCode:
			out = append(out, Code{Lang: r.Lang, Text: r.Text})
		case KindList:
			out = append(out, List{Items: r.Items, Ordered: r.Ordered})
		case KindImage:
			out = append(out, Image{URL: r.URL, Alt: r.Alt})
		default:
			return fmt.Errorf("content: block %d has unknown type %q", i, r.Type)
		}
	}
	*bs = out
	return nil
}
