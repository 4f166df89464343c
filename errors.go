package folio

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/notify"
	"github.com/eringen/folio/publish"
	"github.com/eringen/folio/store"
	"github.com/eringen/folio/subscribers"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string               `json:"error"`
	Fields []publish.FieldError `json:"fields,omitempty"`
}

// statusFor maps a domain error to an HTTP status and response body.
func statusFor(err error) (int, errorBody) {
	var (
		he         *echo.HTTPError
		ve         *publish.ValidationError
		conflict   *store.ConflictError
		transition *store.TransitionError
		transport  *notify.TransportError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: ve.Fields}
	case errors.Is(err, subscribers.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, errorBody{
			Error:  "validation failed",
			Fields: []publish.FieldError{{Field: "email", Message: "must be a valid email address"}},
		}
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "post store unavailable"}
	case errors.Is(err, publish.ErrContactDisabled):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error()}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, subscribers.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorBody{Error: conflict.Error()}
	case errors.As(err, &transition):
		return http.StatusConflict, errorBody{Error: transition.Error()}
	case errors.As(err, &transport):
		return http.StatusBadGateway, errorBody{Error: "message could not be delivered"}
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, errorBody{Error: msg}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error"}
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, body := statusFor(err)
	if code >= 500 {
		a.Logger.Error("server error", "method", c.Request().Method, "path", c.Request().URL.Path, "status", code, "error", err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		a.Logger.Error("writing error response", "error", err)
	}
}
