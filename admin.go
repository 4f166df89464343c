package folio

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/content"
)

// handleAdmin reports the session state and hands out the CSRF token the
// editor sends back in X-CSRF-Token.
func (a *App) handleAdmin(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": IsAdmin(c),
		"csrf":          CsrfToken(c),
		"store_mode":    a.Store.Mode().String(),
	})
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) != 1 {
		a.loginLimiter.Record(ip)
		a.Logger.Warn("failed admin login", "ip", ip)
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": false})
}

func (a *App) handleAdminListPosts(c echo.Context) error {
	var status content.Status
	if s := c.QueryParam("status"); s != "" {
		st, err := content.ParseStatus(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		status = st
	}
	posts, err := a.Store.List(c.Request().Context(), status)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []content.BlogPost{}
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

func (a *App) handleAdminGetPost(c echo.Context) error {
	post, err := a.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

// handleAdminPublish creates or updates a post as published. Subscribers are
// only notified when the post goes live; failed sends still answer 201 with
// the failures listed in the outcome.
func (a *App) handleAdminPublish(c echo.Context) error {
	var in content.Input
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := a.Publisher.Publish(c.Request().Context(), in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, out)
}

func (a *App) handleAdminDraft(c echo.Context) error {
	var in content.Input
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := a.Publisher.SaveDraft(c.Request().Context(), in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, out)
}

type updateRequest struct {
	content.Input
	// Publish moves a draft live. Published posts stay published on edit and
	// other posts are saved as drafts.
	Publish bool `json:"publish"`
}

func (a *App) handleAdminUpdatePost(c echo.Context) error {
	ctx := c.Request().Context()
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.ID = c.Param("id")
	current, err := a.Store.Get(ctx, req.ID)
	if err != nil {
		return err
	}
	save := a.Publisher.SaveDraft
	if req.Publish || current.Status == content.StatusPublished {
		save = a.Publisher.Publish
	}
	out, err := save(ctx, req.Input)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, out)
}

func (a *App) handleAdminDeletePost(c echo.Context) error {
	if err := a.Publisher.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminArchive(c echo.Context) error {
	post, err := a.Publisher.Archive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleAdminRestore(c echo.Context) error {
	post, err := a.Publisher.Restore(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleAdminSubscribers(c echo.Context) error {
	ctx := c.Request().Context()
	subs, err := a.Registry.List(ctx)
	if err != nil {
		return err
	}
	active, total, err := a.Registry.Count(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"subscribers": subs,
		"active":      active,
		"total":       total,
	})
}

func (a *App) handleAdminNotifications(c echo.Context) error {
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	entries, err := a.NotifyLog.List(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
