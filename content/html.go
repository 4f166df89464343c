package content

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

var (
	reBold             = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore   = regexp.MustCompile(`__(.+?)__`)
	reItalic           = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnderscore = regexp.MustCompile(`_([^_]+)_`)
	reInlineCode       = regexp.MustCompile("`([^`]+)`")
	reLink             = regexp.MustCompile(`\[(.*?)\]\((.*?)\)(\^)?`)
)

// HTML returns a templ.Component that renders a post body as HTML.
func HTML(body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, RenderHTML(body))
		return err
	})
}

// RenderHTML parses body into blocks and renders them as sanitized HTML.
func RenderHTML(body string) string {
	var buf bytes.Buffer
	for _, b := range Parse(body) {
		writeBlockHTML(&buf, b)
	}
	return buf.String()
}

func writeBlockHTML(buf *bytes.Buffer, b Block) {
	switch v := b.(type) {
	case Heading:
		if v.Level < 1 || v.Level > 3 {
			v.Level = 2
		}
		tag := "h" + strconv.Itoa(v.Level)
		buf.WriteString("<" + tag + ">" + FormatInline(v.Text) + "</" + tag + ">")
	case Paragraph:
		buf.WriteString("<p>")
		buf.WriteString(FormatInline(strings.Join(strings.Split(v.Text, "\n"), " ")))
		buf.WriteString("</p>")
	case Quote:
		buf.WriteString("<blockquote>")
		buf.WriteString(FormatInline(strings.Join(strings.Fields(v.Text), " ")))
		buf.WriteString("</blockquote>")
	case Code:
		if v.Lang != "" {
			lang := html.EscapeString(v.Lang)
			buf.WriteString(`<pre class="code-block"><code class="language-` + lang + `">`)
		} else {
			buf.WriteString(`<pre class="code-block"><code>`)
		}
		buf.WriteString(html.EscapeString(v.Text))
		buf.WriteString("</code></pre>")
	case List:
		tag := "ul"
		if v.Ordered {
			tag = "ol"
		}
		buf.WriteString("<" + tag + ">")
		for _, item := range v.Items {
			buf.WriteString("<li>" + FormatInline(item) + "</li>")
		}
		buf.WriteString("</" + tag + ">")
	case Image:
		src := SafeURL(v.URL)
		if src == "" {
			return
		}
		buf.WriteString(`<img loading="lazy" decoding="async" alt="` + html.EscapeString(v.Alt) + `" src="` + src + `"/>`)
	}
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags,
// so that formatting regexes never touch URLs inside href attributes.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// FormatInline escapes s and applies bold, italic, inline code and link
// formatting. A trailing ^ after a link opens it in a new tab.
func FormatInline(s string) string {
	escaped := html.EscapeString(s)

	// Pull inline code out first so nothing inside backticks is formatted.
	var spans []string
	escaped = reInlineCode.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reInlineCode.FindStringSubmatch(m)
		spans = append(spans, "<code>"+match[1]+"</code>")
		return "\x00IC" + strconv.Itoa(len(spans)-1) + "\x00"
	})
	escaped = reLink.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		attrs := ""
		if match[3] == "^" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>` + match[1] + `</a>`
	})
	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		seg = reItalicUnderscore.ReplaceAllString(seg, "<em>$1</em>")
		return seg
	})
	for i, code := range spans {
		escaped = strings.Replace(escaped, "\x00IC"+strconv.Itoa(i)+"\x00", code, 1)
	}
	return escaped
}

// SafeURL validates and escapes a URL for use in an HTML attribute. Relative
// paths, fragments and http, https, mailto and tel URLs are allowed; anything
// else yields "".
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}

// PlainText strips serialization markers from body, for excerpts and
// plain-text email bodies.
func PlainText(body string) string {
	var parts []string
	for _, b := range Parse(body) {
		switch v := b.(type) {
		case Heading:
			parts = append(parts, v.Text)
		case Paragraph:
			parts = append(parts, strings.Join(strings.Fields(v.Text), " "))
		case Quote:
			parts = append(parts, strings.Join(strings.Fields(v.Text), " "))
		case Code:
			parts = append(parts, v.Text)
		case List:
			parts = append(parts, strings.Join(v.Items, "; "))
		}
	}
	return strings.Join(parts, "\n\n")
}
