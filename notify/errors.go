package notify

import (
	"fmt"
	"strings"
)

// TransportError is a delivery failure reported by the provider or the
// network. It is retryable, but the dispatcher records it and moves on.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TemplateError means the template is unknown, a required variable is
// missing or execution failed. It indicates a caller bug and is not
// retryable.
type TemplateError struct {
	Template TemplateID
	Unknown  bool
	Missing  []string
	Err      error
}

func (e *TemplateError) Error() string {
	switch {
	case e.Unknown:
		return fmt.Sprintf("unknown template %q", e.Template)
	case len(e.Missing) > 0:
		return fmt.Sprintf("template %q: missing variables: %s", e.Template, strings.Join(e.Missing, ", "))
	default:
		return fmt.Sprintf("template %q: %v", e.Template, e.Err)
	}
}

func (e *TemplateError) Unwrap() error { return e.Err }
