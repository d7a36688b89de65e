package memhost

import "github.com/toxoid/toxoid-go/internal/core/host"

// Entity ids encode a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generations start at 1 so no live id is ever zero.

func makeID(index, generation uint32) host.EntityID {
	return host.EntityID(uint64(generation)<<32 | uint64(index))
}

func indexOf(id host.EntityID) uint32      { return uint32(id) }
func generationOf(id host.EntityID) uint32 { return uint32(uint64(id) >> 32) }

// entityPool manages entity allocation with generational indices and a free list.
type entityPool struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	limit       int // 0 means unbounded
	live        int
}

func newEntityPool(limit int) *entityPool {
	return &entityPool{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]uint32, 0, 256),
		limit:       limit,
	}
}

func (p *entityPool) create() (host.EntityID, bool) {
	if p.limit > 0 && p.live >= p.limit {
		return 0, false
	}
	p.live++
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return makeID(idx, p.generations[idx]), true
	}
	idx := p.nextIndex
	p.nextIndex++
	p.generations = append(p.generations, 1)
	return makeID(idx, 1), true
}

func (p *entityPool) alive(id host.EntityID) bool {
	idx := indexOf(id)
	if id == 0 || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == generationOf(id)
}

func (p *entityPool) destroy(id host.EntityID) {
	if !p.alive(id) {
		return
	}
	idx := indexOf(id)
	p.generations[idx]++
	if p.generations[idx] == 0 {
		p.generations[idx] = 1
	}
	p.freeList = append(p.freeList, idx)
	p.live--
}
