package geometry

import (
	"errors"
	"fmt"
)

// Kind classifies a geometry failure.
type Kind int

const (
	// KindUnsupported means the text does not start with POLYGON or MULTIPOLYGON
	// and coordinate recovery found nothing usable either.
	KindUnsupported Kind = iota + 1
	// KindParse means structured parsing and coordinate recovery both failed.
	KindParse
	// KindValidation means the geometry parsed but failed the acceptance gate.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

var (
	ErrUnsupportedFormat = errors.New("unsupported geometry format")
	ErrParse             = errors.New("geometry parse failed")
	ErrValidation        = errors.New("geometry validation failed")
)

// snippetLen bounds the input echoed back in diagnostics.
const snippetLen = 80

// Error describes why a single geometry was rejected. errors.Is matches the
// sentinel for its Kind as well as the underlying cause.
type Error struct {
	Kind      Kind
	ContextID string
	Snippet   string
	Err       error
}

// NewError builds an Error, truncating input into a diagnostic snippet.
func NewError(kind Kind, contextID, input string, err error) *Error {
	return &Error{Kind: kind, ContextID: contextID, Snippet: Snippet(input), Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s geometry error", e.Kind)
	if e.ContextID != "" {
		msg += " for " + e.ContextID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (input %q)", e.Snippet)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindUnsupported:
		sentinel = ErrUnsupportedFormat
	case KindValidation:
		sentinel = ErrValidation
	default:
		sentinel = ErrParse
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// Snippet truncates s for logging.
func Snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
