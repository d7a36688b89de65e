package system

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/component"
	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/host"
)

// Snake runs the game rules over a spawned scene.
//
//	input       steer players from the KeyboardInput singleton
//	update      step every Direction holder one cell per interval
//	post-update eat food under the player
//	pre-render  copy parent positions onto render children
type Snake struct {
	w        *ecs.World
	scene    Scene
	rng      *rand.Rand
	interval time.Duration
	acc      time.Duration
	tick     uint64
	step     bool
	log      *zap.Logger
}

// NewSnake creates the rule set. interval is the time between grid steps.
func NewSnake(w *ecs.World, scene Scene, interval time.Duration, rng *rand.Rand) *Snake {
	return &Snake{w: w, scene: scene, rng: rng, interval: interval, log: w.Log().Named("snake")}
}

// Register adds the snake systems to the world.
func (s *Snake) Register() error {
	steps := []struct {
		name  string
		phase host.Phase
		terms []ecs.Term
		fn    func(*ecs.Batch) error
	}{
		{"steer", host.PhaseInput, []ecs.Term{ecs.TermOf[component.Player](), ecs.TermOf[component.Direction]()}, s.steer},
		{"move", host.PhaseUpdate, []ecs.Term{ecs.TermOf[component.Position](), ecs.TermOf[component.Direction]()}, s.move},
		{"eat", host.PhasePostUpdate, []ecs.Term{ecs.TermOf[component.Food](), ecs.TermOf[component.Position]()}, s.eat},
		{"follow", host.PhasePreRender, []ecs.Term{ecs.TermOf[component.Renderable](), ecs.TermOf[component.Position]()}, s.follow},
	}
	for _, st := range steps {
		if _, err := s.w.System(st.name).With(st.terms...).Phase(st.phase).Build(st.fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snake) steer(b *ecs.Batch) error {
	kb, err := ecs.GetSingleton[component.KeyboardInput](b.World())
	if err != nil {
		return err
	}
	in := kb.Load()
	want, ok := heading(in)
	if !ok {
		return nil
	}
	dirs, err := ecs.ColumnOf[component.Direction](b)
	if err != nil {
		return err
	}
	for i := 0; i < dirs.Len(); i++ {
		cur := dirs.Get(i).Direction
		if want == cur || want == cur.Opposite() {
			continue
		}
		if err := dirs.Set(i, component.Direction{Direction: want}); err != nil {
			return err
		}
	}
	return nil
}

// heading picks one direction from the pressed keys, vertical first.
func heading(in component.KeyboardInput) (component.Dir, bool) {
	switch {
	case in.Up:
		return component.Up, true
	case in.Down:
		return component.Down, true
	case in.Left:
		return component.Left, true
	case in.Right:
		return component.Right, true
	}
	return 0, false
}

func (s *Snake) move(b *ecs.Batch) error {
	// The step clock advances once per tick, whatever the batch count.
	if t := b.World().Ticks(); t != s.tick {
		s.tick = t
		s.acc += b.DeltaTime()
		s.step = s.acc >= s.interval
		if s.step {
			s.acc -= s.interval
		}
	}
	if !s.step {
		return nil
	}
	cfg, err := ecs.GetSingleton[component.GameConfig](b.World())
	if err != nil {
		return err
	}
	bounds := cfg.Load()
	pos, err := ecs.ColumnOf[component.Position](b)
	if err != nil {
		return err
	}
	dirs, err := ecs.ColumnOf[component.Direction](b)
	if err != nil {
		return err
	}
	for i := 0; i < pos.Len(); i++ {
		p := advance(pos.Get(i), dirs.Get(i).Direction, bounds)
		if err := pos.Set(i, p); err != nil {
			return err
		}
	}
	return nil
}

// advance moves p one cell along d, wrapping at the board edges.
func advance(p component.Position, d component.Dir, bounds component.GameConfig) component.Position {
	switch d {
	case component.Up:
		p.Y -= Cell
	case component.Down:
		p.Y += Cell
	case component.Left:
		p.X -= Cell
	case component.Right:
		p.X += Cell
	}
	w, h := int32(bounds.Width), int32(bounds.Height)
	if w > 0 {
		p.X = ((p.X % w) + w) % w
	}
	if h > 0 {
		p.Y = ((p.Y % h) + h) % h
	}
	return p
}

func (s *Snake) eat(b *ecs.Batch) error {
	w := b.World()
	head, err := ecs.Get[component.Position](w, s.scene.Player)
	if err != nil {
		if ecs.IsFatal(err) {
			return err
		}
		return nil
	}
	at := head.Load()
	foods, err := ecs.ColumnOf[component.Position](b)
	if err != nil {
		return err
	}
	cfg, err := ecs.GetSingleton[component.GameConfig](w)
	if err != nil {
		return err
	}
	for i := 0; i < foods.Len(); i++ {
		if foods.Get(i) != at {
			continue
		}
		if err := foods.Set(i, randomCell(s.rng, cfg.Load(), at)); err != nil {
			return err
		}
		stats, err := ecs.Get[component.Stats](w, s.scene.Player)
		if err != nil {
			return err
		}
		var score uint32
		if err := stats.Update(func(st *component.Stats) {
			st.Score++
			st.TailLength++
			st.HighScore = max(st.HighScore, st.Score)
			score = st.Score
		}); err != nil {
			return err
		}
		s.log.Debug("food eaten", zap.Uint64("food", uint64(b.Entity(i))), zap.Uint32("score", score))
	}
	return nil
}

func (s *Snake) follow(b *ecs.Batch) error {
	w := b.World()
	pos, err := ecs.ColumnOf[component.Position](b)
	if err != nil {
		return err
	}
	for i, e := range b.Entities() {
		parent, ok := w.Parent(e)
		if !ok {
			continue
		}
		ref, err := ecs.Get[component.Position](w, parent)
		if err != nil {
			if ecs.IsFatal(err) {
				return err
			}
			continue
		}
		if err := pos.Set(i, ref.Load()); err != nil {
			return err
		}
	}
	return nil
}
