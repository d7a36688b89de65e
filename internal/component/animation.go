package component

// Atlas and Skeleton hold the raw files of a bone animation until the
// engine has parsed them.
type Atlas struct {
	Atlas    uint64
	Filename string
	Data     []byte
	Loaded   bool
}

type Skeleton struct {
	Skeleton uint64
	Filename string
	Data     []byte
	Loaded   bool
}

type BoneAnimation struct {
	AnimationState string
	Animation      string
}

type SpineInstance struct {
	Instance     uint64
	Instantiated bool
}

type AnimationState struct {
	CurrentAnimation   string
	LastValidDirection Dir
}

type MovementState struct {
	IsMoving bool
}

type FrameByFrameAnimation struct{}

// Tilemaps.

type TiledWorld struct {
	World uint64
}

type TiledCell struct {
	Cell  uint64
	Index uint32
}

type Tileset struct {
	Tileset string
}
