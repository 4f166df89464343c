package folio

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/content"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

// postPage is the minimal standalone HTML page for a published post, used
// for link previews and readers without the editor UI.
func postPage(post content.BlogPost, related []content.BlogPost, cfg SiteConfig) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		esc := templ.EscapeString[string]
		head := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
			`<meta name="viewport" content="width=device-width, initial-scale=1">` +
			`<title>` + esc(post.Title) + ` | ` + esc(cfg.Name) + `</title>` +
			`<meta name="description" content="` + esc(post.Excerpt) + `">` +
			`<link rel="canonical" href="` + esc(BuildURL(cfg.URL, "blog", post.Slug)) + `">` +
			`<link rel="alternate" type="application/rss+xml" href="/feed.xml">` +
			`<script type="application/ld+json">` + BlogPostingJSONLD(post, cfg) + `</script>` +
			`</head><body><article><h1>` + esc(post.Title) + `</h1>` +
			`<time datetime="` + publishedDate(post).Format(time.RFC3339) + `">` +
			publishedDate(post).Format("January 2, 2006") + `</time>`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := content.HTML(post.Body).Render(ctx, w); err != nil {
			return err
		}
		tail := `</article>`
		if len(related) > 0 {
			tail += `<aside><h2>Related</h2><ul>`
			for _, p := range related {
				tail += `<li><a href="` + esc(p.Link()) + `/">` + esc(p.Title) + `</a></li>`
			}
			tail += `</ul></aside>`
		}
		tail += `</body></html>`
		_, err := io.WriteString(w, tail)
		return err
	})
}
