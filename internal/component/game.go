package component

// Snake game state.

type (
	Player struct{}
	Food   struct{}
	Head   struct{}
	Tail   struct{}
)

// Stats tracks the player's score.
type Stats struct {
	Score      uint32
	HighScore  uint32
	TailLength uint32
}

// Network presence tags.
type (
	Connected    struct{}
	Disconnected struct{}
)

// Singletons.

// KeyboardInput is the latest polled arrow-key state.
type KeyboardInput struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// GameConfig is the window size in pixels.
type GameConfig struct {
	Width  uint32
	Height uint32
}

type RenderSystems struct {
	Entity uint64
}

type MainCamera struct {
	Entity uint64
}

// Relations between a logical entity and the entities that draw it.
type (
	RenderTargetRelationship          struct{}
	TilesetRelationship               struct{}
	BoneAnimationRelationship         struct{}
	FrameByFrameAnimationRelationship struct{}
	SpriteRelationship                struct{}
	RectRelationship                  struct{}
)
