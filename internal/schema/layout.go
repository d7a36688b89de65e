package schema

// Layout describes where each field lives inside a component row.
// Fields keep declaration order and are placed at their natural alignment.
type Layout struct {
	Offsets []uint32
	Size    uint32
	Align   uint32
}

// ComputeLayout places kinds in order with natural alignment and rounds the
// row size up to the largest alignment. An empty list yields a zero-size tag.
func ComputeLayout(kinds []Kind) Layout {
	l := Layout{Offsets: make([]uint32, len(kinds)), Align: 1}
	var off uint32
	for i, k := range kinds {
		sz := k.Size()
		if sz == 0 {
			continue
		}
		off = alignUp(off, sz)
		l.Offsets[i] = off
		off += sz
		if sz > l.Align {
			l.Align = sz
		}
	}
	if len(kinds) == 0 {
		return l
	}
	l.Size = alignUp(off, l.Align)
	return l
}

func alignUp(v, a uint32) uint32 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}
