// Package host defines the foreign-function boundary to the ECS engine that
// owns component storage and the tick scheduler. Everything crossing it is
// plain ids, names, type tags and byte windows; no Go types leak across.
package host

import (
	"errors"
	"time"
)

// EntityID is the host's opaque 64-bit entity handle. Zero is never valid.
type EntityID uint64

// ComponentID is the numeric id the host assigns to a registered schema.
// Zero is never valid.
type ComponentID uint32

// QueryHandle identifies a persistent query built by the host.
type QueryHandle uint64

// IterHandle identifies one in-flight iteration over a query.
type IterHandle uint64

// SystemHandle identifies a registered system.
type SystemHandle uint64

// Errors a host reports. The ECS layer classifies them into its error kinds.
var (
	ErrRejected   = errors.New("host rejected request")
	ErrExhausted  = errors.New("host resources exhausted")
	ErrNotFound   = errors.New("not found")
	ErrNoBatch    = errors.New("no current batch")
	ErrClosed     = errors.New("host closed")
	ErrReentrant  = errors.New("host call not allowed during iteration")
	ErrUnresolved = errors.New("host symbol unresolved")
)

// Phase orders systems within a tick. Hosts that define their own ordering
// may ignore it; the reference host sorts by phase, then registration order.
type Phase int

const (
	PhaseInput Phase = iota
	PhasePreUpdate
	PhaseUpdate
	PhasePostUpdate
	PhasePreRender
	PhaseRender
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhasePreRender:
		return "pre_render"
	case PhaseRender:
		return "render"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// SystemFunc is invoked by the host scheduler once per matching batch per
// tick. The iterator is already positioned on the batch.
type SystemFunc func(it IterHandle, dt time.Duration) error

// Host is the logical shape of the boundary. Every call is fallible.
type Host interface {
	// RegisterComponent allocates a storage layout for the schema and returns
	// its id. fieldTypes carries schema.Kind values.
	RegisterComponent(name string, fieldNames []string, fieldTypes []uint8) (ComponentID, error)
	// ComponentSize reports the row size the host allocated for id.
	ComponentSize(id ComponentID) (uint32, error)

	EntityNew() (EntityID, error)
	EntityDestroy(e EntityID) error
	EntityAlive(e EntityID) bool
	EntityAdd(e EntityID, c ComponentID) error
	EntityRemove(e EntityID, c ComponentID) error
	EntityHas(e EntityID, c ComponentID) bool
	// EntityGet returns a window over the attached row, or ErrNotFound.
	EntityGet(e EntityID, c ComponentID) (View, error)

	// EntityRelate sets the single (relation, target) edge of e, replacing
	// any previous target for the same relation.
	EntityRelate(e EntityID, relation ComponentID, target EntityID) error
	EntityUnrelate(e EntityID, relation ComponentID) error
	EntityTarget(e EntityID, relation ComponentID) (EntityID, bool)

	SingletonAdd(c ComponentID) error
	SingletonGet(c ComponentID) (View, error)

	QueryBuild(components []ComponentID) (QueryHandle, error)
	QueryIter(q QueryHandle) (IterHandle, error)
	// IterNext advances to the next batch and reports whether one exists.
	IterNext(it IterHandle) (bool, error)
	IterCount(it IterHandle) (int, error)
	IterEntities(it IterHandle) ([]EntityID, error)
	IterColumn(it IterHandle, c ComponentID) (Column, error)
	IterFinish(it IterHandle)

	RegisterSystem(name string, q QueryHandle, phase Phase, fn SystemFunc) (SystemHandle, error)
	// Progress runs one tick of the host scheduler.
	Progress(dt time.Duration) error

	Close() error
}
