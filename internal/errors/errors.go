/*
Package errors provides error creation and matching for the wallet engine.
It is imported as errors and takes over the role of the standard library
errors package inside the engine.

Every error leaving a wallet entry point is an *Error carrying the Kind a
caller branches on. Lower layers return ordinary wrapped errors; the engine
classifies them at the boundary with E.
*/
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Separator is inserted between nested errors when formatting as strings.
var Separator = ": "

// Error describes an error condition raised by the wallet engine.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
}

// Op describes the operation in which an error condition was raised.
type Op string

// Opf returns a formatted Op.
func Opf(format string, a ...any) Op {
	return Op(fmt.Sprintf(format, a...))
}

// Kind describes the class of error.
type Kind int

// Error kinds.
const (
	Other           Kind = iota // Unclassified error, does not appear in error strings
	Invalid                     // Invalid argument or operation
	Transport                   // Chain source call failed or returned unusable data
	Birthday                    // Birthday tree state could not be used
	Store                       // Wallet store read or write failed
	Scan                        // A block in a batch failed to scan
	Proposal                    // No transaction satisfying the request could be proposed
	AccountNotFound             // Account index does not resolve to an account
	Build                       // Proving, signing or serialization failed
	SendFailed                  // Server rejected a submitted transaction
	KeyDerivation               // Recovery phrase or key index unusable
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "unclassified error"
	case Invalid:
		return "invalid operation"
	case Transport:
		return "chain source error"
	case Birthday:
		return "birthday error"
	case Store:
		return "wallet store error"
	case Scan:
		return "scan error"
	case Proposal:
		return "proposal error"
	case AccountNotFound:
		return "account not found"
	case Build:
		return "build error"
	case SendFailed:
		return "send failed"
	case KeyDerivation:
		return "key derivation error"
	default:
		return "unknown error kind"
	}
}

// SendError carries a server rejection verbatim.
type SendError struct {
	Code   int32
	Reason string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Reason)
}

// BirthdayError names the birthday height whose tree state was unusable.
type BirthdayError struct {
	Height uint32
	Err    error
}

func (e *BirthdayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("height %d", e.Height)
	}
	return fmt.Sprintf("height %d: %v", e.Height, e.Err)
}

func (e *BirthdayError) Unwrap() error { return e.Err }

// New creates a simple error from a string. New is identical to "errors".New
// from the standard library.
func New(text string) error {
	return errors.New(text)
}

// Errorf creates a simple error from a format string and arguments. Errorf
// is identical to "fmt".Errorf from the standard library.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// E creates an *Error from one or more arguments.
//
// Each argument type is inspected when constructing the error. If multiple
// args of similar type are passed, the final arg is recorded. The following
// types are recognized:
//
//	errors.Op
//	    The operation which was invoked.
//	errors.Kind
//	    The class of error.
//	string
//	    Description of the error condition.
//	error
//	    The underlying error. If the error is an *Error, its Op and Kind
//	    are promoted when not set by other args.
//
// Panics if no arguments are passed.
func E(args ...any) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	var e Error
	var prev *Error
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case string:
			e.Err = New(arg)
		case *Error:
			prev = arg
			e.Err = arg
		case error:
			e.Err = arg
		}
	}
	// Collapse a nested *Error that adds nothing.
	if e.Err == prev && prev != nil {
		if e.Op == "" {
			e.Op = prev.Op
		}
		if e.Kind == Other {
			e.Kind = prev.Kind
		}
		if (prev.Op == "" || e.Op == prev.Op) && (prev.Kind == Other || e.Kind == prev.Kind) {
			e.Err = prev.Err
		}
	}
	return &e
}

// SendFailedError returns the SendFailed error for a server rejection.
func SendFailedError(op Op, code int32, reason string) error {
	return &Error{Op: op, Kind: SendFailed, Err: &SendError{Code: code, Reason: reason}}
}

func (e *Error) Error() string {
	var b strings.Builder
	var last Error
	for {
		pad := false
		if e.Op != "" && e.Op != last.Op {
			b.WriteString(string(e.Op))
			pad = true
			last.Op = e.Op
		}
		if e.Kind != Other && e.Kind != last.Kind {
			if pad {
				b.WriteString(": ")
			}
			b.WriteString(e.Kind.String())
			pad = true
			last.Kind = e.Kind
		}
		if e.Err == nil {
			break
		}
		if err, ok := e.Err.(*Error); ok {
			if pad {
				b.WriteString(Separator)
			}
			e = err
			continue
		}
		if pad {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
		break
	}
	s := b.String()
	if s == "" {
		return Other.String()
	}
	return s
}

// Unwrap returns the underlying error so the standard library errors.Is and
// errors.As reach sentinel causes.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is returns whether err wraps an *Error with a matching kind. The first
// *Error in the chain with a kind other than Other decides. Does not match
// against the Other kind.
func Is(kind Kind, err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind != Other {
			return e.Kind == kind
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the first classified *Error in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return Other
		}
		if e.Kind != Other {
			return e.Kind
		}
		err = e.Err
	}
	return Other
}

// Cause is the standard library errors.Is, exposed so callers importing
// this package can still match sentinel errors.
func Cause(err, target error) bool {
	return errors.Is(err, target)
}

// As is identical to "errors".As from the standard library.
func As(err error, target any) bool {
	return errors.As(err, target)
}
