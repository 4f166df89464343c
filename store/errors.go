package store

import (
	"errors"
	"fmt"

	"github.com/eringen/folio/content"
)

var (
	// ErrNotFound is returned when no post matches the requested id or slug.
	ErrNotFound = errors.New("post not found")

	// ErrStoreUnavailable is returned when neither the remote nor the local
	// store could complete an operation.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// UnavailableError carries the failed operation and the fallback store's
// error. errors.Is(err, ErrStoreUnavailable) holds for it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// ConflictError is returned when a post would take a slug already used by
// another post.
type ConflictError struct {
	Slug string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slug %q is already in use", e.Slug)
}

// TransitionError is returned when a status change is not allowed.
type TransitionError struct {
	From content.Status
	To   content.Status
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("cannot create a post with status %q", e.To)
	}
	return fmt.Sprintf("cannot move post from %q to %q", e.From, e.To)
}

// definite reports whether err rejects the operation itself, whatever
// store it runs against.
func definite(err error) bool {
	var conflict *ConflictError
	var transition *TransitionError
	return errors.As(err, &conflict) || errors.As(err, &transition)
}

// authoritative reports whether err is a definite answer about the data
// rather than a failure to reach it.
func authoritative(err error) bool {
	return errors.Is(err, ErrNotFound) || definite(err)
}
