package folio

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/publish"
)

// postSummary is the list form of a published post.
type postSummary struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags"`
	CoverImage  string    `json:"cover_image,omitempty"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	PublishedAt time.Time `json:"published_at"`
}

func summarize(posts []content.BlogPost) []postSummary {
	out := make([]postSummary, len(posts))
	for i, p := range posts {
		out[i] = postSummary{
			ID:          p.ID,
			Slug:        p.Slug,
			Title:       p.Title,
			Excerpt:     p.Excerpt,
			Author:      p.Author,
			Tags:        p.Tags,
			CoverImage:  p.CoverImage,
			Views:       p.Views,
			Likes:       p.Likes,
			PublishedAt: publishedDate(p),
		}
	}
	return out
}

// postResponse is a published post with its rendered body.
type postResponse struct {
	content.BlogPost
	HTML    string        `json:"html"`
	Related []postSummary `json:"related"`
}

func (a *App) handleListPosts(c echo.Context) error {
	ctx := c.Request().Context()
	tag := c.QueryParam("tag")
	posts, err := a.Cache.ListPosts(ctx, tag)
	if err != nil {
		return err
	}
	tags, err := a.Cache.ListTags(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"posts": summarize(posts),
		"tags":  tags,
		"tag":   tag,
	})
}

func (a *App) handleGetPost(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if err != nil {
		return err
	}
	posts, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	if !isCrawler(c.Request().UserAgent()) {
		if views, err := a.Store.AddView(ctx, post.ID); err != nil {
			a.Logger.Warn("counting view", "id", post.ID, "error", err)
		} else {
			post.Views = views
		}
	}
	return c.JSON(http.StatusOK, postResponse{
		BlogPost: post,
		HTML:     content.RenderHTML(post.Body),
		Related:  summarize(RelatedPosts(post, posts, 3)),
	})
}

func (a *App) handlePostPage(c echo.Context) error {
	ctx := c.Request().Context()
	post, err := a.Cache.GetPost(ctx, c.Param("slug"))
	if err != nil {
		return err
	}
	posts, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	return Render(c, postPage(post, RelatedPosts(post, posts, 3), a.Config))
}

func (a *App) handleLike(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")
	if !a.formLimiter.Allow("like:" + c.RealIP() + ":" + slug) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}
	post, err := a.Cache.GetPost(ctx, slug)
	if err != nil {
		return err
	}
	likes, err := a.Store.AddLike(ctx, post.ID)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, map[string]int64{"likes": likes})
}

type subscribeRequest struct {
	Email string `json:"email" form:"email"`
	Name  string `json:"name" form:"name"`
}

func (a *App) handleSubscribe(c echo.Context) error {
	if !a.formLimiter.Allow("subscribe:" + c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	added, err := a.Publisher.Subscribe(c.Request().Context(), req.Email, req.Name)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	return c.JSON(code, map[string]bool{"added": added})
}

func (a *App) handleUnsubscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	removed, err := a.Publisher.Unsubscribe(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"removed": removed})
}

// handleUnsubscribeLink serves the signed link included in every email.
func (a *App) handleUnsubscribeLink(c echo.Context) error {
	email := c.QueryParam("email")
	if !a.unsubscribe.Valid(email, c.QueryParam("token")) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid unsubscribe link")
	}
	if _, err := a.Publisher.Unsubscribe(c.Request().Context(), email); err != nil {
		return err
	}
	return c.String(http.StatusOK, "You have been unsubscribed from "+a.Config.Name+".")
}

func (a *App) handleContact(c echo.Context) error {
	if !a.formLimiter.Allow("contact:" + c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}
	var msg publish.ContactMessage
	if err := c.Bind(&msg); err != nil {
		return err
	}
	if err := a.Publisher.Contact(c.Request().Context(), msg); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]bool{"sent": true})
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}
