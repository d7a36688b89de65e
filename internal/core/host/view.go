package host

// Heap holds the variable-length payloads of string and bytes fields. The row
// slot of such a field stores the handle; handle 0 means empty.
type Heap interface {
	Load(handle uint64) []byte
	// Store replaces the payload behind old (which may be 0) and returns the
	// handle to write back into the row.
	Store(old uint64, data []byte) uint64
}

// View is a window over one host-owned component row. It is only valid for
// the call scope that produced it.
type View struct {
	Data []byte
	Heap Heap
}

// Empty reports whether the view points at nothing.
func (v View) Empty() bool { return v.Data == nil && v.Heap == nil }

// Column is a window over the rows of one component inside a batch. Rows are
// contiguous with the given stride; tags have stride 0 and no data.
type Column struct {
	Data   []byte
	Stride uint32
	Count  int
	Heap   Heap
}

// Row returns the view of row i, or an empty view when i is out of range.
func (c Column) Row(i int) View {
	if i < 0 || i >= c.Count {
		return View{}
	}
	if c.Stride == 0 {
		return View{Data: []byte{}, Heap: c.Heap}
	}
	start := uint64(i) * uint64(c.Stride)
	end := start + uint64(c.Stride)
	if end > uint64(len(c.Data)) {
		return View{}
	}
	return View{Data: c.Data[start:end:end], Heap: c.Heap}
}
