package memhost

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// query caches the tables that hold every term. The cache is refreshed
// lazily whenever a new table has been created since the last match.
type query struct {
	ids     []host.ComponentID
	matched []*table
	seen    int
}

func (q *query) refresh(tables []*table) []*table {
	for ; q.seen < len(tables); q.seen++ {
		if t := tables[q.seen]; t.hasAll(q.ids) {
			q.matched = append(q.matched, t)
		}
	}
	return q.matched
}

// iter walks one matching table per batch.
type iter struct {
	tables []*table
	pos    int // index of the current table, -1 before the first Next
	done   bool
}

func (it *iter) current() (*table, bool) {
	if it.done || it.pos < 0 || it.pos >= len(it.tables) {
		return nil, false
	}
	return it.tables[it.pos], true
}

func (h *Host) QueryBuild(ids []host.ComponentID) (host.QueryHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("query: no terms: %w", host.ErrRejected)
	}
	for i, id := range ids {
		if _, err := h.info(id); err != nil {
			return 0, fmt.Errorf("query term %d: %w", i, err)
		}
		if slices.Contains(ids[:i], id) {
			return 0, fmt.Errorf("query term %d: duplicate component %d: %w", i, id, host.ErrRejected)
		}
	}
	h.queries = append(h.queries, &query{ids: slices.Clone(ids)})
	return host.QueryHandle(len(h.queries)), nil
}

func (h *Host) queryByHandle(q host.QueryHandle) (*query, error) {
	if q == 0 || int(q) > len(h.queries) {
		return nil, fmt.Errorf("query %d: %w", q, host.ErrNotFound)
	}
	return h.queries[q-1], nil
}

// QueryIter starts an iteration. Structural changes requested while any
// iteration is open are queued and applied when the last one finishes.
func (h *Host) QueryIter(q host.QueryHandle) (host.IterHandle, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	qq, err := h.queryByHandle(q)
	if err != nil {
		return 0, err
	}
	var tables []*table
	for _, t := range qq.refresh(h.tables) {
		if len(t.entities) > 0 {
			tables = append(tables, t)
		}
	}
	h.nextIter++
	handle := host.IterHandle(h.nextIter)
	h.iters[handle] = &iter{tables: tables, pos: -1}
	h.iterating++
	return handle, nil
}

// finished stands in for handles that were issued and have since completed.
var finished = &iter{done: true}

func (h *Host) iterByHandle(it host.IterHandle) (*iter, error) {
	if i, ok := h.iters[it]; ok {
		return i, nil
	}
	if it > 0 && uint64(it) <= h.nextIter {
		return finished, nil
	}
	return nil, fmt.Errorf("iter %d: %w", it, host.ErrNotFound)
}

// IterNext advances to the next non-empty batch. It reports false once the
// iteration is exhausted and finishes it implicitly.
func (h *Host) IterNext(it host.IterHandle) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	i, err := h.iterByHandle(it)
	if err != nil {
		return false, err
	}
	if i.done {
		return false, nil
	}
	i.pos++
	if i.pos >= len(i.tables) {
		h.IterFinish(it)
		return false, nil
	}
	return true, nil
}

func (h *Host) IterCount(it host.IterHandle) (int, error) {
	t, err := h.positioned(it)
	if err != nil {
		return 0, err
	}
	return len(t.entities), nil
}

func (h *Host) IterEntities(it host.IterHandle) ([]host.EntityID, error) {
	t, err := h.positioned(it)
	if err != nil {
		return nil, err
	}
	return t.entities[:len(t.entities):len(t.entities)], nil
}

// IterColumn returns the column of c in the current batch. c need not be a
// query term as long as the batch's table stores it.
func (h *Host) IterColumn(it host.IterHandle, c host.ComponentID) (host.Column, error) {
	t, err := h.positioned(it)
	if err != nil {
		return host.Column{}, err
	}
	col, ok := t.index[c]
	if !ok {
		return host.Column{}, fmt.Errorf("iter %d component %d: %w", it, c, host.ErrNotFound)
	}
	stride := t.strides[col]
	n := len(t.entities)
	data := []byte{}
	if stride > 0 {
		data = t.columns[col][: n*int(stride) : n*int(stride)]
	}
	return host.Column{Data: data, Stride: stride, Count: n, Heap: h.heap}, nil
}

func (h *Host) positioned(it host.IterHandle) (*table, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	i, err := h.iterByHandle(it)
	if err != nil {
		return nil, err
	}
	t, ok := i.current()
	if !ok {
		return nil, fmt.Errorf("iter %d: %w", it, host.ErrNoBatch)
	}
	return t, nil
}

// IterFinish closes the iteration and, once no iteration is open, applies
// the queued structural changes. Finishing twice is a no-op.
func (h *Host) IterFinish(it host.IterHandle) {
	if h.closed {
		return
	}
	i, ok := h.iters[it]
	if !ok || i.done {
		return
	}
	i.done = true
	delete(h.iters, it)
	h.iterating--
	if h.iterating == 0 {
		if err := h.flush(); err != nil {
			h.log.Warn("deferred operation failed", zap.Error(err))
		}
	}
}
