package memhost

import (
	"fmt"
	"slices"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

func (h *Host) EntityNew() (host.EntityID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.iterating > 0 {
		return 0, fmt.Errorf("entity new: %w", host.ErrReentrant)
	}
	id, ok := h.pool.create()
	if !ok {
		return 0, fmt.Errorf("entity new: %d live entities: %w", h.pool.live, host.ErrExhausted)
	}
	row := h.empty.appendRow(id)
	h.locs[id] = location{table: h.empty, row: row}
	return id, nil
}

func (h *Host) EntityAlive(e host.EntityID) bool {
	return !h.closed && h.pool.alive(e)
}

// deferOrRun runs op now, or queues it until the active iteration finishes.
func (h *Host) deferOrRun(op func() error) error {
	if h.iterating > 0 {
		h.deferred = append(h.deferred, op)
		return nil
	}
	return op()
}

func (h *Host) flush() error {
	var firstErr error
	for len(h.deferred) > 0 {
		ops := h.deferred
		h.deferred = nil
		for _, op := range ops {
			if err := op(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// EntityDestroy removes e and every edge where e is the source. Edges that
// target e are dropped as well; the entities holding them stay alive.
func (h *Host) EntityDestroy(e host.EntityID) error {
	if err := h.check(); err != nil {
		return err
	}
	if !h.pool.alive(e) {
		return fmt.Errorf("entity %d: %w", e, host.ErrNotFound)
	}
	return h.deferOrRun(func() error {
		if !h.pool.alive(e) {
			return nil
		}
		loc := h.locs[e]
		for col, id := range loc.table.ids {
			if loc.table.strides[col] == 0 {
				continue
			}
			freeHeapFields(h.heap, h.components[id-1], loc.table.rowBytes(col, loc.row))
		}
		h.detachRow(loc)
		delete(h.locs, e)
		delete(h.relations, e)
		for src, edges := range h.relations {
			for rel, target := range edges {
				if target == e {
					delete(edges, rel)
				}
			}
			if len(edges) == 0 {
				delete(h.relations, src)
			}
		}
		h.pool.destroy(e)
		return nil
	})
}

func (h *Host) detachRow(loc location) {
	if moved := loc.table.removeRow(loc.row); moved != 0 {
		h.locs[moved] = location{table: loc.table, row: loc.row}
	}
}

func (h *Host) EntityAdd(e host.EntityID, c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	if _, err := h.info(c); err != nil {
		return err
	}
	if !h.pool.alive(e) {
		return fmt.Errorf("entity %d: %w", e, host.ErrNotFound)
	}
	return h.deferOrRun(func() error {
		if !h.pool.alive(e) {
			return nil
		}
		loc := h.locs[e]
		if loc.table.has(c) {
			return nil
		}
		ids := append(slices.Clone(loc.table.ids), c)
		slices.Sort(ids)
		h.move(e, loc, h.getOrCreateTable(ids))
		return nil
	})
}

func (h *Host) EntityRemove(e host.EntityID, c host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	info, err := h.info(c)
	if err != nil {
		return err
	}
	if !h.pool.alive(e) {
		return fmt.Errorf("entity %d: %w", e, host.ErrNotFound)
	}
	return h.deferOrRun(func() error {
		if !h.pool.alive(e) {
			return nil
		}
		loc := h.locs[e]
		col, ok := loc.table.index[c]
		if !ok {
			return nil
		}
		if loc.table.strides[col] > 0 {
			freeHeapFields(h.heap, info, loc.table.rowBytes(col, loc.row))
		}
		ids := slices.DeleteFunc(slices.Clone(loc.table.ids), func(id host.ComponentID) bool { return id == c })
		h.move(e, loc, h.getOrCreateTable(ids))
		return nil
	})
}

// move appends e to dst, copies the shared columns and swap-removes the old row.
func (h *Host) move(e host.EntityID, from location, dst *table) {
	row := dst.appendRow(e)
	for col, id := range dst.ids {
		if dst.strides[col] == 0 {
			continue
		}
		if src, ok := from.table.index[id]; ok {
			copy(dst.rowBytes(col, row), from.table.rowBytes(src, from.row))
		}
	}
	h.detachRow(from)
	h.locs[e] = location{table: dst, row: row}
}

func (h *Host) EntityHas(e host.EntityID, c host.ComponentID) bool {
	if h.closed || !h.pool.alive(e) {
		return false
	}
	return h.locs[e].table.has(c)
}

func (h *Host) EntityGet(e host.EntityID, c host.ComponentID) (host.View, error) {
	if err := h.check(); err != nil {
		return host.View{}, err
	}
	if !h.pool.alive(e) {
		return host.View{}, fmt.Errorf("entity %d: %w", e, host.ErrNotFound)
	}
	loc := h.locs[e]
	col, ok := loc.table.index[c]
	if !ok {
		return host.View{}, fmt.Errorf("entity %d component %d: %w", e, c, host.ErrNotFound)
	}
	if loc.table.strides[col] == 0 {
		return host.View{Data: []byte{}, Heap: h.heap}, nil
	}
	return host.View{Data: loc.table.rowBytes(col, loc.row), Heap: h.heap}, nil
}

// ── Relationships ──

func (h *Host) EntityRelate(e host.EntityID, relation host.ComponentID, target host.EntityID) error {
	if err := h.check(); err != nil {
		return err
	}
	if _, err := h.info(relation); err != nil {
		return err
	}
	if !h.pool.alive(e) {
		return fmt.Errorf("entity %d: %w", e, host.ErrNotFound)
	}
	if !h.pool.alive(target) {
		return fmt.Errorf("target %d: %w", target, host.ErrNotFound)
	}
	if e == target {
		return fmt.Errorf("entity %d cannot relate to itself: %w", e, host.ErrRejected)
	}
	edges, ok := h.relations[e]
	if !ok {
		edges = make(map[host.ComponentID]host.EntityID, 1)
		h.relations[e] = edges
	}
	edges[relation] = target
	return nil
}

func (h *Host) EntityUnrelate(e host.EntityID, relation host.ComponentID) error {
	if err := h.check(); err != nil {
		return err
	}
	if edges, ok := h.relations[e]; ok {
		delete(edges, relation)
		if len(edges) == 0 {
			delete(h.relations, e)
		}
	}
	return nil
}

func (h *Host) EntityTarget(e host.EntityID, relation host.ComponentID) (host.EntityID, bool) {
	if h.closed {
		return 0, false
	}
	target, ok := h.relations[e][relation]
	return target, ok
}
