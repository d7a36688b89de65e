package memhost

// heap stores string and bytes payloads behind non-zero handles.
type heap struct {
	items map[uint64][]byte
	next  uint64
}

func newHeap() *heap {
	return &heap{items: make(map[uint64][]byte, 64)}
}

func (h *heap) Load(handle uint64) []byte {
	if handle == 0 {
		return nil
	}
	return h.items[handle]
}

func (h *heap) Store(old uint64, data []byte) uint64 {
	if len(data) == 0 {
		h.free(old)
		return 0
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	if _, ok := h.items[old]; ok && old != 0 {
		h.items[old] = buf
		return old
	}
	h.next++
	h.items[h.next] = buf
	return h.next
}

func (h *heap) free(handle uint64) {
	if handle != 0 {
		delete(h.items, handle)
	}
}

func (h *heap) len() int { return len(h.items) }
