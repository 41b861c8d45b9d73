package browsing

import (
	"errors"
)

// Kind classifies errors surfaced to callers.
type Kind int

const (
	// KindIO wraps an operating system error.
	KindIO Kind = iota
	// KindOther carries a free-text description (contract violations, decoding).
	KindOther
)

func (k Kind) String() string {
	if k == KindOther {
		return "other"
	}
	return "io"
}

// Error is the single error type returned by Browser operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindOther {
		return "etc-error: " + e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrConflictingMode is returned when recursion and a depth bound are combined.
	ErrConflictingMode = &Error{Kind: KindOther, Msg: "read_dir_option--recursive && lvs"}

	// ErrInvalidUTF8 is wrapped by ReadFile when content is not UTF-8 text.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
)

func ioError(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Kind: KindIO, Err: err}
}

// KindOf reports the Kind of err; ok is false for errors not produced here.
func KindOf(err error) (kind Kind, ok bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return KindIO, false
}
