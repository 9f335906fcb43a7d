// Package mpserr provides the error taxonomy for the memory pool system. It wraps
// github.com/gostdlib/base/errors the same way a client-facing error package would,
// giving every error a Category (who is at fault) and a Type (what went wrong) so
// callers can switch on cause instead of string-matching messages (§6, §7).
package mpserr

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
)

//go:generate stringer -type=Category -linecomment

// Category represents who is responsible for an error.
type Category uint32

func (c Category) String() string {
	switch c {
	case CatClient:
		return "Client"
	case CatResource:
		return "Resource"
	case CatInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

const (
	// CatUnknown should not be used.
	CatUnknown Category = Category(0)
	// CatClient represents a contract violation by the calling client: a null
	// required argument, an unaligned address, a closed object, a format method
	// that returned something the collector cannot use. Maps to result code PARAM.
	CatClient Category = Category(1)
	// CatResource represents a resource exhaustion the collector itself hit while
	// servicing a request: commit limit reached, forwarding buffer could not be
	// refilled, no free trace slot. Recoverable by escalating to emergency mode.
	CatResource Category = Category(2)
	// CatInternal represents a collector bug: an invariant the engine itself is
	// supposed to maintain was found violated.
	CatInternal Category = Category(3)
)

//go:generate stringer -type=Type -linecomment

// Type refines Category with the §6 result-code taxonomy.
type Type uint16

func (t Type) String() string {
	switch t {
	case TypeParam:
		return "Param"
	case TypeLimit:
		return "Limit"
	case TypeResource:
		return "Resource"
	case TypeUnimpl:
		return "Unimpl"
	case TypeInvariant:
		return "Invariant"
	default:
		return "Unknown"
	}
}

const (
	TypeUnknown   Type = Type(0)
	TypeParam     Type = Type(1) // bad argument, wrong pool class, unaligned address
	TypeLimit     Type = Type(2) // no free trace id
	TypeResource  Type = Type(3) // allocation failed mid-collection
	TypeUnimpl    Type = Type(4) // unsupported pool/format/root class
	TypeInvariant Type = Type(5) // tricolor/summary/nailboard invariant broken
)

// Err is the error type returned by this package. Cause is the wrapped
// github.com/gostdlib/base/errors.Error, kept for its logging/tracing integration;
// Category and Type are exposed directly so callers don't need to know gostdlib's
// introspection API to classify a failure.
type Err struct {
	Cause    errors.Error
	Category Category
	Type     Type
}

func (e Err) Error() string {
	return e.Cause.Error()
}

func (e Err) Unwrap() error {
	return e.Cause
}

// E creates a new Err carrying c and t, wrapping msg.
func E(ctx context.Context, c Category, t Type, msg error) Err {
	return Err{
		Cause:    errors.E(ctx, errors.Category(c), errors.Type(t), msg, errors.WithCallNum(2)),
		Category: c,
		Type:     t,
	}
}

// IsResource reports whether err signals resource exhaustion, the trigger for
// entering emergency mode per §4.4/§7.
func IsResource(err error) bool {
	e, ok := err.(Err)
	return ok && e.Category == CatResource
}

// IsLimit reports whether err is a LIMIT result (no free trace id).
func IsLimit(err error) bool {
	e, ok := err.(Err)
	return ok && e.Type == TypeLimit
}

// IsParam reports whether err is a contract violation (PARAM).
func IsParam(err error) bool {
	e, ok := err.(Err)
	return ok && e.Category == CatClient
}
