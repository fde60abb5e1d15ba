package common

import "fmt"

// Kind classifies why an operation refused to run.
type Kind int

const (
	MissingPrerequisite Kind = iota + 1
	InvalidArgument
	MissingResource
	InsufficientData
)

func (k Kind) String() string {
	switch k {
	case MissingPrerequisite:
		return "MissingPrerequisite"
	case InvalidArgument:
		return "InvalidArgument"
	case MissingResource:
		return "MissingResource"
	case InsufficientData:
		return "InsufficientData"
	}
	return "Unknown"
}

// Sentinels for errors.Is checks against an *Error of the same Kind.
var (
	ErrMissingPrerequisite = &Error{Kind: MissingPrerequisite}
	ErrInvalidArgument     = &Error{Kind: InvalidArgument}
	ErrMissingResource     = &Error{Kind: MissingResource}
	ErrInsufficientData    = &Error{Kind: InsufficientData}
)

// Error is returned by every validating operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

// Errorf builds an *Error for op.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
