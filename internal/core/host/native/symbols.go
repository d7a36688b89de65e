//go:build (darwin || linux) && (amd64 || arm64)

package native

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// Status codes returned by the engine's C entry points.
const (
	statusOK        = 0
	statusRejected  = 1
	statusExhausted = 2
	statusNotFound  = 3
	statusNoBatch   = 4
	statusReentrant = 5
)

func statusErr(op string, code int32) error {
	switch code {
	case statusOK:
		return nil
	case statusRejected:
		return fmt.Errorf("%s: %w", op, host.ErrRejected)
	case statusExhausted:
		return fmt.Errorf("%s: %w", op, host.ErrExhausted)
	case statusNotFound:
		return fmt.Errorf("%s: %w", op, host.ErrNotFound)
	case statusNoBatch:
		return fmt.Errorf("%s: %w", op, host.ErrNoBatch)
	case statusReentrant:
		return fmt.Errorf("%s: %w", op, host.ErrReentrant)
	default:
		return fmt.Errorf("%s: status %d: %w", op, code, host.ErrRejected)
	}
}

// symbols is the engine's exported C ABI. Every entry is resolved at Open;
// a missing symbol fails the whole binding.
type symbols struct {
	registerComponent func(name string, fieldNames unsafe.Pointer, fieldTypes unsafe.Pointer, n uint32) uint32
	componentSize     func(id uint32) uint32

	entityNew     func() uint64
	entityDestroy func(e uint64) int32
	entityAlive   func(e uint64) bool
	entityAdd     func(e uint64, c uint32) int32
	entityRemove  func(e uint64, c uint32) int32
	entityHas     func(e uint64, c uint32) bool
	entityGet     func(e uint64, c uint32, size *uint32) unsafe.Pointer

	entityRelate   func(e uint64, rel uint32, target uint64) int32
	entityUnrelate func(e uint64, rel uint32) int32
	entityTarget   func(e uint64, rel uint32) uint64

	singletonAdd func(c uint32) int32
	singletonGet func(c uint32, size *uint32) unsafe.Pointer

	queryBuild   func(ids unsafe.Pointer, n uint32) uint64
	queryIter    func(q uint64) uint64
	iterNext     func(it uint64) bool
	iterCount    func(it uint64) uint32
	iterEntities func(it uint64) unsafe.Pointer
	iterColumn   func(it uint64, c uint32, stride *uint32) unsafe.Pointer
	iterFinish   func(it uint64)

	systemRegister func(name string, q uint64, phase int32, callback uintptr) uint64
	progress       func(dtNanos int64) int32

	heapLoad  func(handle uint64, size *uint32) unsafe.Pointer
	heapStore func(old uint64, data unsafe.Pointer, size uint32) uint64

	shutdown func()
}

func (s *symbols) bind(lib uintptr) error {
	table := []struct {
		name string
		fptr any
	}{
		{"toxoid_register_component", &s.registerComponent},
		{"toxoid_component_size", &s.componentSize},
		{"toxoid_entity_new", &s.entityNew},
		{"toxoid_entity_destroy", &s.entityDestroy},
		{"toxoid_entity_alive", &s.entityAlive},
		{"toxoid_entity_add", &s.entityAdd},
		{"toxoid_entity_remove", &s.entityRemove},
		{"toxoid_entity_has", &s.entityHas},
		{"toxoid_entity_get", &s.entityGet},
		{"toxoid_entity_relate", &s.entityRelate},
		{"toxoid_entity_unrelate", &s.entityUnrelate},
		{"toxoid_entity_target", &s.entityTarget},
		{"toxoid_singleton_add", &s.singletonAdd},
		{"toxoid_singleton_get", &s.singletonGet},
		{"toxoid_query_build", &s.queryBuild},
		{"toxoid_query_iter", &s.queryIter},
		{"toxoid_iter_next", &s.iterNext},
		{"toxoid_iter_count", &s.iterCount},
		{"toxoid_iter_entities", &s.iterEntities},
		{"toxoid_iter_column", &s.iterColumn},
		{"toxoid_iter_finish", &s.iterFinish},
		{"toxoid_system_register", &s.systemRegister},
		{"toxoid_progress", &s.progress},
		{"toxoid_heap_load", &s.heapLoad},
		{"toxoid_heap_store", &s.heapStore},
		{"toxoid_shutdown", &s.shutdown},
	}
	for _, sym := range table {
		addr, err := purego.Dlsym(lib, sym.name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", sym.name, host.ErrUnresolved)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}
	return nil
}
