package system

import (
	"sort"

	"github.com/toxoid/toxoid-go/internal/component"
	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/host"
)

// DrawRect is one filled rectangle of a frame.
type DrawRect struct {
	Entity ecs.EntityID
	X, Y   int32
	W, H   uint32
	Color  component.Color
}

// DrawList collects the rects a renderer would draw this frame. It does not
// rasterize anything.
type DrawList struct {
	pending []DrawRect
	frame   []DrawRect
	frames  uint64
}

// Register adds the collector systems. Rects are gathered in the render
// phase and published in cleanup.
func (d *DrawList) Register(w *ecs.World) error {
	rects := []ecs.Term{
		ecs.TermOf[component.Rect](),
		ecs.TermOf[component.Renderable](),
		ecs.TermOf[component.Position](),
		ecs.TermOf[component.Size](),
		ecs.TermOf[component.Color](),
	}
	if _, err := w.System("draw_rects").With(rects...).Phase(host.PhaseRender).Build(d.collect); err != nil {
		return err
	}
	_, err := w.System("present").
		With(ecs.TermOf[component.Rect](), ecs.TermOf[component.Renderable]()).
		Phase(host.PhaseCleanup).
		Build(d.present)
	return err
}

func (d *DrawList) collect(b *ecs.Batch) error {
	pos, err := ecs.ColumnOf[component.Position](b)
	if err != nil {
		return err
	}
	size, err := ecs.ColumnOf[component.Size](b)
	if err != nil {
		return err
	}
	color, err := ecs.ColumnOf[component.Color](b)
	if err != nil {
		return err
	}
	for i := 0; i < b.Len(); i++ {
		p, s := pos.Get(i), size.Get(i)
		d.pending = append(d.pending, DrawRect{
			Entity: b.Entity(i),
			X:      p.X,
			Y:      p.Y,
			W:      s.Width,
			H:      s.Height,
			Color:  color.Get(i),
		})
	}
	return nil
}

// present publishes the collected rects once per tick, on the first batch.
func (d *DrawList) present(b *ecs.Batch) error {
	if d.pending == nil {
		return nil
	}
	sort.Slice(d.pending, func(i, j int) bool { return d.pending[i].Entity < d.pending[j].Entity })
	d.frame, d.pending = d.pending, nil
	d.frames++
	return nil
}

// Frame returns the rects of the last completed tick, ordered by entity.
func (d *DrawList) Frame() []DrawRect { return d.frame }

// Frames counts published frames.
func (d *DrawList) Frames() uint64 { return d.frames }
