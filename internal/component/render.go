package component

// Color is a linear RGBA tint.
type Color struct {
	R float32
	G float32
	B float32
	A float32
}

// RenderTarget references an engine-side render texture.
type RenderTarget struct {
	RenderTarget uint64
	ZDepth       uint32
	FlipY        bool
}

type BlendMode struct {
	BlendMode uint8
	Alpha     float32
}

type Sprite struct {
	Sprite uint64
}

type Image struct {
	Info uint64
}

// Camera describes the visible viewport.
type Camera struct {
	ViewportWidth  float32
	ViewportHeight float32
	Zoom           float32
}

// Tags.
type (
	Rect             struct{}
	Blittable        struct{}
	Renderable       struct{}
	RenderableOnLoad struct{}
)

// UI tags.
type (
	Window struct{}
	Text   struct{}
	Button struct{}
)

type UIImage struct {
	TextureID uint64
}
