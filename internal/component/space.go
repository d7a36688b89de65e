package component

// Position is an entity's location in world units.
type Position struct {
	X int32
	Y int32
}

// Size is an entity's extent in world units.
type Size struct {
	Width  uint32
	Height uint32
}

// Velocity is displacement per second.
type Velocity struct {
	DX float32
	DY float32
}

// Dir is a cardinal heading. The numeric values are stored in rows.
type Dir uint8

const (
	Up Dir = iota
	Down
	Left
	Right
)

func (d Dir) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// Opposite reports the reverse heading.
func (d Dir) Opposite() Dir {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Direction is the heading an entity moves along.
type Direction struct {
	Direction Dir
}
