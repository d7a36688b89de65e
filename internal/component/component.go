// Package component declares the engine's standard component set as plain Go
// structs. Field order and types define the row layout the host allocates;
// struct{} types are tags.
package component

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/ecs"
)

type registrar func(*ecs.World) (ecs.ComponentID, error)

var components = []registrar{
	// Space
	ecs.Register[Position],
	ecs.Register[Size],
	ecs.Register[Velocity],
	ecs.Register[Direction],
	// Rendering
	ecs.Register[Color],
	ecs.Register[Sprite],
	ecs.Register[Image],
	ecs.Register[RenderTarget],
	ecs.Register[BlendMode],
	ecs.Register[Camera],
	// Animation
	ecs.Register[Atlas],
	ecs.Register[Skeleton],
	ecs.Register[BoneAnimation],
	ecs.Register[SpineInstance],
	ecs.Register[AnimationState],
	ecs.Register[MovementState],
	ecs.Register[FrameByFrameAnimation],
	// Tilemaps
	ecs.Register[TiledWorld],
	ecs.Register[TiledCell],
	ecs.Register[Tileset],
	// Game
	ecs.Register[Stats],
	// Tags
	ecs.Register[Rect],
	ecs.Register[Blittable],
	ecs.Register[Renderable],
	ecs.Register[RenderableOnLoad],
	ecs.Register[Window],
	ecs.Register[Text],
	ecs.Register[Button],
	ecs.Register[UIImage],
	ecs.Register[Connected],
	ecs.Register[Disconnected],
	ecs.Register[Player],
	ecs.Register[Food],
	ecs.Register[Head],
	ecs.Register[Tail],
}

var relations = []registrar{
	ecs.RegisterRelation[RenderTargetRelationship],
	ecs.RegisterRelation[TilesetRelationship],
	ecs.RegisterRelation[BoneAnimationRelationship],
	ecs.RegisterRelation[FrameByFrameAnimationRelationship],
	ecs.RegisterRelation[SpriteRelationship],
	ecs.RegisterRelation[RectRelationship],
}

var singletons = []registrar{
	ecs.AddSingleton[KeyboardInput],
	ecs.AddSingleton[GameConfig],
	ecs.AddSingleton[RenderSystems],
	ecs.AddSingleton[MainCamera],
}

// Init registers the standard set on w and creates its singletons. It must
// run at startup, before the first tick.
func Init(w *ecs.World) error {
	groups := []struct {
		name string
		fns  []registrar
	}{
		{"components", components},
		{"relations", relations},
		{"singletons", singletons},
	}
	total := 0
	for _, g := range groups {
		for _, fn := range g.fns {
			if _, err := fn(w); err != nil {
				return fmt.Errorf("init %s: %w", g.name, err)
			}
			total++
		}
	}
	w.Log().Info("standard components registered", zap.Int("count", total))
	return nil
}

// SetGameConfig stores the window size in the GameConfig singleton.
func SetGameConfig(w *ecs.World, width, height uint32) error {
	ref, err := ecs.GetSingleton[GameConfig](w)
	if err != nil {
		return err
	}
	return ref.Store(GameConfig{Width: width, Height: height})
}
