package ecs

import (
	"errors"
	"fmt"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

// ErrorKind classifies failures of the registry and entity API.
type ErrorKind uint8

const (
	// SchemaCollision: two definitions share a name. Fatal at startup.
	SchemaCollision ErrorKind = iota + 1
	// RegistrationFailure: the host rejected a schema. Fatal at startup.
	RegistrationFailure
	// BoundaryMismatch: the host returned an id or shape the world did not
	// expect. Always fatal; the world refuses further calls.
	BoundaryMismatch
	// NotAttached: the component is absent. Recoverable.
	NotAttached
	// ResourceExhausted: the host could not allocate an entity or slot. Fatal.
	ResourceExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case SchemaCollision:
		return "schema collision"
	case RegistrationFailure:
		return "registration failure"
	case BoundaryMismatch:
		return "boundary mismatch"
	case NotAttached:
		return "not attached"
	case ResourceExhausted:
		return "resource exhausted"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Sentinels matching each kind through errors.Is.
var (
	ErrSchemaCollision     = schema.ErrCollision
	ErrRegistrationFailure = errors.New("registration failure")
	ErrBoundaryMismatch    = errors.New("boundary mismatch")
	ErrNotAttached         = errors.New("not attached")
	ErrResourceExhausted   = errors.New("resource exhausted")
)

// Usage errors that are not tied to a host failure.
var (
	// ErrMidIteration is reported, as a BoundaryMismatch, when registration,
	// entity creation or query building is attempted during iteration.
	ErrMidIteration = errors.New("not allowed during iteration")
	// ErrNoBatch is returned for column access outside a positioned batch.
	ErrNoBatch = host.ErrNoBatch
	// ErrStaleView is returned when writing through a view whose scope ended.
	ErrStaleView = errors.New("stale view")
	// ErrNotRelation is returned when a plain component is used as a relation.
	ErrNotRelation = errors.New("not a relation")
	// ErrClosed is returned by every call on a closed world.
	ErrClosed = errors.New("world closed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case SchemaCollision:
		return ErrSchemaCollision
	case RegistrationFailure:
		return ErrRegistrationFailure
	case BoundaryMismatch:
		return ErrBoundaryMismatch
	case NotAttached:
		return ErrNotAttached
	case ResourceExhausted:
		return ErrResourceExhausted
	}
	return nil
}

// Error is the typed error of the ecs package. Op names the failing
// operation and Name the component or entity involved.
type Error struct {
	Kind ErrorKind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil && e.Err != e.Kind.sentinel() {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// IsFatal reports whether the failure must stop startup or the world.
func (e *Error) IsFatal() bool { return e.Kind != NotAttached }

// IsFatal reports whether err carries a fatal ecs.Error.
func IsFatal(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.IsFatal()
}

func newError(kind ErrorKind, op, name string, err error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: err}
}

// classify maps a host error onto an error kind.
func classify(op, name string, err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, host.ErrExhausted):
		return newError(ResourceExhausted, op, name, err)
	case errors.Is(err, host.ErrNotFound):
		return newError(NotAttached, op, name, err)
	case errors.Is(err, host.ErrReentrant):
		return newError(BoundaryMismatch, op, name, fmt.Errorf("%w: %w", ErrMidIteration, err))
	default:
		return newError(BoundaryMismatch, op, name, err)
	}
}
