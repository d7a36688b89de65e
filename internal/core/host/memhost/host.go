// Package memhost is an in-process implementation of the host boundary. It
// keeps archetype tables of raw rows, a heap for variable-length fields, and
// a phase-ordered scheduler, so the ECS layer can run without a native engine.
package memhost

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/core/system"
	"github.com/toxoid/toxoid-go/internal/schema"
)

var _ host.Host = (*Host)(nil)

// Options tunes the reference host.
type Options struct {
	// MaxEntities caps live entities; 0 means unbounded.
	MaxEntities int
	// MaxComponents caps registered schemas; 0 means unbounded.
	MaxComponents int
}

// Host is the reference host. It is not safe for concurrent use.
type Host struct {
	log  *zap.Logger
	opts Options

	pool       *entityPool
	components []*componentInfo
	byName     map[string]host.ComponentID

	tables     []*table
	tableByKey map[string]*table
	empty      *table
	locs       map[host.EntityID]location

	relations  map[host.EntityID]map[host.ComponentID]host.EntityID
	singletons map[host.ComponentID][]byte
	heap       *heap

	queries  []*query
	iters    map[host.IterHandle]*iter
	nextIter uint64

	runner    *system.Runner
	systems   int
	iterating int
	deferred  []func() error
	closed    bool
}

// New creates an empty reference host.
func New(log *zap.Logger, opts Options) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		log:        log,
		opts:       opts,
		pool:       newEntityPool(opts.MaxEntities),
		byName:     make(map[string]host.ComponentID, 64),
		tableByKey: make(map[string]*table, 64),
		locs:       make(map[host.EntityID]location, 1024),
		relations:  make(map[host.EntityID]map[host.ComponentID]host.EntityID),
		singletons: make(map[host.ComponentID][]byte),
		heap:       newHeap(),
		iters:      make(map[host.IterHandle]*iter),
		runner:     system.NewRunner(),
	}
	h.empty = h.getOrCreateTable(nil)
	return h
}

func (h *Host) info(id host.ComponentID) (*componentInfo, error) {
	if id == 0 || int(id) > len(h.components) {
		return nil, fmt.Errorf("component %d: %w", id, host.ErrNotFound)
	}
	return h.components[id-1], nil
}

func (h *Host) check() error {
	if h.closed {
		return host.ErrClosed
	}
	return nil
}

// RegisterComponent lays out a schema from its raw type tags. Registering the
// same name with the same shape returns the existing id; a different shape
// under an existing name is rejected.
func (h *Host) RegisterComponent(name string, fieldNames []string, fieldTypes []uint8) (host.ComponentID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.iterating > 0 {
		return 0, fmt.Errorf("register %s: %w", name, host.ErrReentrant)
	}
	if name == "" || len(fieldNames) != len(fieldTypes) {
		return 0, fmt.Errorf("register %q: malformed schema: %w", name, host.ErrRejected)
	}
	kinds := make([]schema.Kind, len(fieldTypes))
	for i, t := range fieldTypes {
		k := schema.Kind(t)
		if !k.Valid() {
			return 0, fmt.Errorf("register %s.%s: type tag %d: %w", name, fieldNames[i], t, host.ErrRejected)
		}
		kinds[i] = k
	}
	if id, ok := h.byName[name]; ok {
		if h.components[id-1].sameShape(fieldNames, kinds) {
			return id, nil
		}
		return 0, fmt.Errorf("register %s: name already bound to a different layout: %w", name, host.ErrRejected)
	}
	if h.opts.MaxComponents > 0 && len(h.components) >= h.opts.MaxComponents {
		return 0, fmt.Errorf("register %s: %w", name, host.ErrExhausted)
	}
	id := host.ComponentID(len(h.components) + 1)
	h.components = append(h.components, &componentInfo{
		id:     id,
		name:   name,
		names:  slices.Clone(fieldNames),
		kinds:  kinds,
		layout: schema.ComputeLayout(kinds),
	})
	h.byName[name] = id
	h.log.Debug("component registered",
		zap.String("name", name),
		zap.Uint32("id", uint32(id)),
		zap.Uint32("size", h.components[id-1].layout.Size),
	)
	return id, nil
}

func (h *Host) ComponentSize(id host.ComponentID) (uint32, error) {
	info, err := h.info(id)
	if err != nil {
		return 0, err
	}
	return info.layout.Size, nil
}

// ComponentName returns the registered name of id, for diagnostics.
func (h *Host) ComponentName(id host.ComponentID) string {
	info, err := h.info(id)
	if err != nil {
		return ""
	}
	return info.name
}

func (h *Host) getOrCreateTable(ids []host.ComponentID) *table {
	key := tableKey(ids)
	if t, ok := h.tableByKey[key]; ok {
		return t
	}
	t := newTable(ids, h.components)
	h.tables = append(h.tables, t)
	h.tableByKey[key] = t
	return t
}

// ── Singletons ──

func (h *Host) SingletonAdd(c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	info, err := h.info(c)
	if err != nil {
		return err
	}
	if _, ok := h.singletons[c]; ok {
		return nil
	}
	h.singletons[c] = make([]byte, info.layout.Size)
	return nil
}

func (h *Host) SingletonGet(c host.ComponentID) (host.View, error) {
	if err := h.check(); err != nil {
		return host.View{}, err
	}
	row, ok := h.singletons[c]
	if !ok {
		return host.View{}, fmt.Errorf("singleton %d: %w", c, host.ErrNotFound)
	}
	return host.View{Data: row[:len(row):len(row)], Heap: h.heap}, nil
}

// ── Scheduler ──

type hostSystem struct {
	name  string
	phase host.Phase
	query host.QueryHandle
	fn    host.SystemFunc
	h     *Host
}

func (s *hostSystem) Name() string      { return s.name }
func (s *hostSystem) Phase() host.Phase { return s.phase }

func (s *hostSystem) Update(dt time.Duration) error {
	it, err := s.h.QueryIter(s.query)
	if err != nil {
		return err
	}
	defer s.h.IterFinish(it)
	for {
		more, err := s.h.IterNext(it)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if err := s.fn(it, dt); err != nil {
			return err
		}
	}
}

func (h *Host) RegisterSystem(name string, q host.QueryHandle, phase host.Phase, fn host.SystemFunc) (host.SystemHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, fmt.Errorf("system %s: nil callback: %w", name, host.ErrRejected)
	}
	if _, err := h.queryByHandle(q); err != nil {
		return 0, fmt.Errorf("system %s: %w", name, err)
	}
	h.runner.Register(&hostSystem{name: name, phase: phase, query: q, fn: fn, h: h})
	h.systems++
	return host.SystemHandle(h.systems), nil
}

// Progress runs every registered system once, in phase then registration order.
func (h *Host) Progress(dt time.Duration) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.iterating > 0 {
		return fmt.Errorf("progress: %w", host.ErrReentrant)
	}
	return h.runner.Tick(dt)
}

// SystemOrder reports the execution order the scheduler will use.
func (h *Host) SystemOrder() []string { return h.runner.Order() }

func (h *Host) Close() error {
	h.closed = true
	h.tables = nil
	h.tableByKey = nil
	h.locs = nil
	h.iters = nil
	return nil
}

// Stats is a snapshot of host occupancy, for logs and tests.
type Stats struct {
	Entities   int
	Components int
	Tables     int
	HeapItems  int
	Systems    int
}

func (h *Host) Stats() Stats {
	return Stats{
		Entities:   h.pool.live,
		Components: len(h.components),
		Tables:     len(h.tables),
		HeapItems:  h.heap.len(),
		Systems:    h.systems,
	}
}
