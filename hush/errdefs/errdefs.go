// Package errdefs defines the error kinds shared by every hush package.
//
// Each failure returned by the library carries exactly one Kind. Callers match
// on kinds with errors.Is:
//
//	if errors.Is(err, errdefs.ErrAuthentication) {
//		// tampered or wrong key
//	}
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. A Kind is itself an error so it can be used as an
// errors.Is target.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrStreamIO          Kind = "stream i/o failure"
	ErrHeaderParse       Kind = "malformed content info"
	ErrRecipientNotFound Kind = "recipient not found"
	ErrAuthentication    Kind = "authentication failure"
	ErrKeyDecode         Kind = "key decode failure"
	ErrKeyWrap           Kind = "key wrap failure"
	ErrSigning           Kind = "signing failure"
	ErrConfiguration     Kind = "invalid configuration"
	ErrKeyReuse          Kind = "one-time key already consumed"
)

// Error is a classified failure. Op names the operation that failed, Err is the
// underlying cause and may be nil.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an *Error of the given kind. If err already carries the same
// kind it is returned unchanged so kinds never nest.
func New(kind Kind, op string, err error) error {
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain, or ""
// if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// Wrap classifies err under kind unless it is already classified, in which
// case the existing classification wins. Nil in, nil out.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
