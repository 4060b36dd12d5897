package mechanism

import (
	"errors"
	"fmt"
)

// ErrInternal labels every broken invariant between a mechanism's schema,
// its placement and the shared state. None of them is recoverable.
var ErrInternal = errors.New("internal invariant violated")

var (
	ErrMissingIon    = errors.New("missing ion")
	ErrUnknownGlobal = errors.New("unknown global")
	ErrFieldSize     = errors.New("field size mismatch")
	ErrUnknownField  = errors.New("unknown field")
	ErrDuplicateID   = errors.New("duplicate mechanism id")
	ErrLayout        = errors.New("inconsistent layout")
)

// InvariantError reports which ion, global or field broke an invariant.
// It matches both ErrInternal and its kind under errors.Is.
type InvariantError struct {
	Kind error
	msg  string
}

func (e *InvariantError) Error() string {
	return "mechanism: " + e.msg
}

func (e *InvariantError) Unwrap() []error {
	return []error{ErrInternal, e.Kind}
}

func invariant(kind error, format string, args ...any) error {
	return &InvariantError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}
