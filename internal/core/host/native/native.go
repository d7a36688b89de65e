//go:build (darwin || linux) && (amd64 || arm64)

// Package native binds the host boundary to an engine shared library through
// purego, without cgo. The library exports a flat C ABI of toxoid_* symbols;
// ids and handles cross as integers and rows as raw pointers.
package native

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

var _ host.Host = (*Host)(nil)

// Host forwards every boundary call to the loaded engine library.
type Host struct {
	log     *zap.Logger
	lib     uintptr
	sym     symbols
	heap    engineHeap
	systems map[uint64]*nativeSystem
	closed  bool
}

// nativeSystem keeps a Go system callback and the last error it raised. The
// engine only sees a status code; Progress reports the stored error.
type nativeSystem struct {
	name string
	fn   host.SystemFunc
	err  error
}

// Open loads the engine library at path and resolves its entry points.
func Open(path string, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open engine %s: %v: %w", path, err, host.ErrUnresolved)
	}
	h := &Host{log: log, lib: lib, systems: make(map[uint64]*nativeSystem)}
	if err := h.sym.bind(lib); err != nil {
		_ = purego.Dlclose(lib)
		return nil, err
	}
	h.heap = engineHeap{sym: &h.sym}
	log.Info("engine library loaded", zap.String("path", path))
	return h, nil
}

func (h *Host) check() error {
	if h.closed {
		return host.ErrClosed
	}
	return nil
}

// cstrings builds NUL-terminated copies of names and an array of pointers to
// them. The returned slices must stay reachable until the call returns.
func cstrings(names []string) ([][]byte, []*byte) {
	bufs := make([][]byte, len(names))
	ptrs := make([]*byte, len(names)+1)
	for i, n := range names {
		bufs[i] = append([]byte(n), 0)
		ptrs[i] = &bufs[i][0]
	}
	return bufs, ptrs
}

func window(ptr unsafe.Pointer, size uint32) []byte {
	if ptr == nil {
		return nil
	}
	if size == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(ptr), size)
}

func (h *Host) RegisterComponent(name string, fieldNames []string, fieldTypes []uint8) (host.ComponentID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if len(fieldNames) != len(fieldTypes) {
		return 0, fmt.Errorf("register %s: %d names for %d types: %w", name, len(fieldNames), len(fieldTypes), host.ErrRejected)
	}
	bufs, ptrs := cstrings(fieldNames)
	var types unsafe.Pointer
	if len(fieldTypes) > 0 {
		types = unsafe.Pointer(&fieldTypes[0])
	}
	id := h.sym.registerComponent(name, unsafe.Pointer(&ptrs[0]), types, uint32(len(fieldTypes)))
	runtime.KeepAlive(bufs)
	runtime.KeepAlive(ptrs)
	runtime.KeepAlive(fieldTypes)
	if id == 0 {
		return 0, fmt.Errorf("register %s: %w", name, host.ErrRejected)
	}
	return host.ComponentID(id), nil
}

func (h *Host) ComponentSize(id host.ComponentID) (uint32, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.sym.componentSize(uint32(id)), nil
}

func (h *Host) EntityNew() (host.EntityID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	e := h.sym.entityNew()
	if e == 0 {
		return 0, fmt.Errorf("entity new: %w", host.ErrExhausted)
	}
	return host.EntityID(e), nil
}

func (h *Host) EntityDestroy(e host.EntityID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("destroy %d", e), h.sym.entityDestroy(uint64(e)))
}

func (h *Host) EntityAlive(e host.EntityID) bool {
	return !h.closed && h.sym.entityAlive(uint64(e))
}

func (h *Host) EntityAdd(e host.EntityID, c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("add %d to %d", c, e), h.sym.entityAdd(uint64(e), uint32(c)))
}

func (h *Host) EntityRemove(e host.EntityID, c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("remove %d from %d", c, e), h.sym.entityRemove(uint64(e), uint32(c)))
}

func (h *Host) EntityHas(e host.EntityID, c host.ComponentID) bool {
	return !h.closed && h.sym.entityHas(uint64(e), uint32(c))
}

func (h *Host) EntityGet(e host.EntityID, c host.ComponentID) (host.View, error) {
	if err := h.check(); err != nil {
		return host.View{}, err
	}
	var size uint32
	ptr := h.sym.entityGet(uint64(e), uint32(c), &size)
	if ptr == nil {
		return host.View{}, fmt.Errorf("entity %d component %d: %w", e, c, host.ErrNotFound)
	}
	return host.View{Data: window(ptr, size), Heap: h.heap}, nil
}

func (h *Host) EntityRelate(e host.EntityID, relation host.ComponentID, target host.EntityID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("relate %d to %d", e, target), h.sym.entityRelate(uint64(e), uint32(relation), uint64(target)))
}

func (h *Host) EntityUnrelate(e host.EntityID, relation host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("unrelate %d", e), h.sym.entityUnrelate(uint64(e), uint32(relation)))
}

func (h *Host) EntityTarget(e host.EntityID, relation host.ComponentID) (host.EntityID, bool) {
	if h.closed {
		return 0, false
	}
	t := h.sym.entityTarget(uint64(e), uint32(relation))
	return host.EntityID(t), t != 0
}

func (h *Host) SingletonAdd(c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	return statusErr(fmt.Sprintf("singleton %d", c), h.sym.singletonAdd(uint32(c)))
}

func (h *Host) SingletonGet(c host.ComponentID) (host.View, error) {
	if err := h.check(); err != nil {
		return host.View{}, err
	}
	var size uint32
	ptr := h.sym.singletonGet(uint32(c), &size)
	if ptr == nil {
		return host.View{}, fmt.Errorf("singleton %d: %w", c, host.ErrNotFound)
	}
	return host.View{Data: window(ptr, size), Heap: h.heap}, nil
}

func (h *Host) QueryBuild(ids []host.ComponentID) (host.QueryHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("query: no terms: %w", host.ErrRejected)
	}
	raw := make([]uint32, len(ids))
	for i, id := range ids {
		raw[i] = uint32(id)
	}
	q := h.sym.queryBuild(unsafe.Pointer(&raw[0]), uint32(len(raw)))
	runtime.KeepAlive(raw)
	if q == 0 {
		return 0, fmt.Errorf("query build: %w", host.ErrRejected)
	}
	return host.QueryHandle(q), nil
}

func (h *Host) QueryIter(q host.QueryHandle) (host.IterHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	it := h.sym.queryIter(uint64(q))
	if it == 0 {
		return 0, fmt.Errorf("query %d: %w", q, host.ErrNotFound)
	}
	return host.IterHandle(it), nil
}

func (h *Host) IterNext(it host.IterHandle) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.sym.iterNext(uint64(it)), nil
}

func (h *Host) IterCount(it host.IterHandle) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return int(h.sym.iterCount(uint64(it))), nil
}

func (h *Host) IterEntities(it host.IterHandle) ([]host.EntityID, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	n := h.sym.iterCount(uint64(it))
	ptr := h.sym.iterEntities(uint64(it))
	if ptr == nil {
		return nil, fmt.Errorf("iter %d: %w", it, host.ErrNoBatch)
	}
	return unsafe.Slice((*host.EntityID)(ptr), n), nil
}

func (h *Host) IterColumn(it host.IterHandle, c host.ComponentID) (host.Column, error) {
	if err := h.check(); err != nil {
		return host.Column{}, err
	}
	n := h.sym.iterCount(uint64(it))
	var stride uint32
	ptr := h.sym.iterColumn(uint64(it), uint32(c), &stride)
	if ptr == nil {
		return host.Column{}, fmt.Errorf("iter %d component %d: %w", it, c, host.ErrNoBatch)
	}
	return host.Column{Data: window(ptr, stride*n), Stride: stride, Count: int(n), Heap: h.heap}, nil
}

func (h *Host) IterFinish(it host.IterHandle) {
	if !h.closed {
		h.sym.iterFinish(uint64(it))
	}
}

// RegisterSystem hands the engine a C callback that re-enters Go once per
// matching batch. The callback returns non-zero to abort the tick.
func (h *Host) RegisterSystem(name string, q host.QueryHandle, phase host.Phase, fn host.SystemFunc) (host.SystemHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, fmt.Errorf("system %s: nil callback: %w", name, host.ErrRejected)
	}
	sys := &nativeSystem{name: name, fn: fn}
	cb := purego.NewCallback(func(it uint64, dtNanos int64) int32 {
		if err := sys.fn(host.IterHandle(it), time.Duration(dtNanos)); err != nil {
			sys.err = err
			return 1
		}
		return 0
	})
	handle := h.sym.systemRegister(name, uint64(q), int32(phase), cb)
	if handle == 0 {
		return 0, fmt.Errorf("system %s: %w", name, host.ErrRejected)
	}
	h.systems[handle] = sys
	return host.SystemHandle(handle), nil
}

func (h *Host) Progress(dt time.Duration) error {
	if err := h.check(); err != nil {
		return err
	}
	code := h.sym.progress(int64(dt))
	for _, sys := range h.systems {
		if sys.err != nil {
			err := sys.err
			sys.err = nil
			return fmt.Errorf("system %s: %w", sys.name, err)
		}
	}
	return statusErr("progress", code)
}

func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.sym.shutdown()
	if err := purego.Dlclose(h.lib); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

// engineHeap reaches the engine's side table for string and bytes payloads.
type engineHeap struct {
	sym *symbols
}

func (e engineHeap) Load(handle uint64) []byte {
	if handle == 0 {
		return nil
	}
	var size uint32
	ptr := e.sym.heapLoad(handle, &size)
	return window(ptr, size)
}

func (e engineHeap) Store(old uint64, data []byte) uint64 {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	handle := e.sym.heapStore(old, ptr, uint32(len(data)))
	runtime.KeepAlive(data)
	return handle
}
