package system

import (
	"fmt"
	"math/rand/v2"

	"github.com/toxoid/toxoid-go/internal/component"
	"github.com/toxoid/toxoid-go/internal/core/ecs"
)

// Cell is the side of one grid square in pixels.
const Cell = 50

// Scene holds the entities spawned for the snake board.
type Scene struct {
	Player       ecs.EntityID
	PlayerSprite ecs.EntityID
	Food         ecs.EntityID
	FoodSprite   ecs.EntityID
}

var (
	playerColor = component.Color{R: 1, A: 1}
	foodColor   = component.Color{R: 1, G: 1, B: 1, A: 1}
)

// SpawnScene creates the player and one piece of food, each with a child
// render target carrying the drawable rect. Standard components must already
// be registered and the GameConfig singleton set.
func SpawnScene(w *ecs.World, rng *rand.Rand) (Scene, error) {
	var s Scene
	var err error

	s.Player, err = spawn(w,
		setter(component.Position{X: 350, Y: 50}),
		setter(component.Direction{Direction: component.Down}),
		setter(component.Stats{}),
		tagger[component.Player](),
		tagger[component.Head](),
	)
	if err != nil {
		return Scene{}, fmt.Errorf("spawn player: %w", err)
	}
	if s.PlayerSprite, err = spawnSprite(w, s.Player, component.Position{X: 350, Y: 50}, playerColor); err != nil {
		return Scene{}, fmt.Errorf("spawn player sprite: %w", err)
	}

	cfg, err := ecs.GetSingleton[component.GameConfig](w)
	if err != nil {
		return Scene{}, err
	}
	at := randomCell(rng, cfg.Load(), component.Position{X: 350, Y: 50})
	if s.Food, err = spawn(w, setter(at), tagger[component.Food]()); err != nil {
		return Scene{}, fmt.Errorf("spawn food: %w", err)
	}
	if s.FoodSprite, err = spawnSprite(w, s.Food, at, foodColor); err != nil {
		return Scene{}, fmt.Errorf("spawn food sprite: %w", err)
	}

	w.Log().Info("snake scene spawned")
	return s, nil
}

type attach func(*ecs.World, ecs.EntityID) error

func setter[T any](v T) attach {
	return func(w *ecs.World, e ecs.EntityID) error { return ecs.Set(w, e, v) }
}

func tagger[T any]() attach {
	return func(w *ecs.World, e ecs.EntityID) error { return ecs.Add[T](w, e) }
}

func spawn(w *ecs.World, parts ...attach) (ecs.EntityID, error) {
	e, err := w.NewEntity()
	if err != nil {
		return 0, err
	}
	for _, p := range parts {
		if err := p(w, e); err != nil {
			return 0, err
		}
	}
	return e, nil
}

func spawnSprite(w *ecs.World, parent ecs.EntityID, at component.Position, c component.Color) (ecs.EntityID, error) {
	e, err := spawn(w,
		tagger[component.Rect](),
		tagger[component.Renderable](),
		setter(c),
		setter(at),
		setter(component.Size{Width: Cell, Height: Cell}),
	)
	if err != nil {
		return 0, err
	}
	return e, w.ChildOf(e, parent)
}

// randomCell picks a grid-aligned position inside the board other than avoid.
func randomCell(rng *rand.Rand, cfg component.GameConfig, avoid component.Position) component.Position {
	cols, rows := int(cfg.Width/Cell), int(cfg.Height/Cell)
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	for i := 0; ; i++ {
		p := component.Position{X: int32(rng.IntN(cols) * Cell), Y: int32(rng.IntN(rows) * Cell)}
		if p != avoid || cols*rows == 1 || i > 64 {
			return p
		}
	}
}
