package document

import (
	"fmt"

	"formfill/internal/domain"
)

// TemplateFetchError is fatal to one generation: the template could not be
// downloaded.
type TemplateFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TemplateFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch template %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch template %s: %v", e.URL, e.Err)
}

func (e *TemplateFetchError) Unwrap() error { return e.Err }

// TemplateParseError is fatal to one generation: the template bytes are not
// a readable form document.
type TemplateParseError struct {
	Err error
}

func (e *TemplateParseError) Error() string {
	return fmt.Sprintf("parse template: %v", e.Err)
}

func (e *TemplateParseError) Unwrap() error { return e.Err }

// WidgetWriteMismatch records a resolved value that was not written. It is
// never returned as an error; populators log and collect it.
type WidgetWriteMismatch struct {
	Widget string            `json:"widget"`
	Kind   domain.WidgetKind `json:"kind"`
	Reason string            `json:"reason"`
}

func (m WidgetWriteMismatch) Error() string {
	return fmt.Sprintf("widget %q (%s): %s", m.Widget, m.Kind, m.Reason)
}

// FinalizationWarning means the document was populated but could not be
// flattened.
type FinalizationWarning struct {
	Err error
}

func (w *FinalizationWarning) Error() string {
	return fmt.Sprintf("finalize document: %v", w.Err)
}

func (w *FinalizationWarning) Unwrap() error { return w.Err }
