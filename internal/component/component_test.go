package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/host/memhost"
	"github.com/toxoid/toxoid-go/internal/schema"
)

func newWorld(t *testing.T) *ecs.World {
	t.Helper()
	w, err := ecs.NewWorld(memhost.New(nil, memhost.Options{}), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestInitRegistersStandardSet(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, Init(w))

	for _, name := range []string{"Position", "RenderTarget", "Player", "Stats", "RenderTargetRelationship"} {
		_, ok := w.Lookup(name)
		assert.True(t, ok, name)
	}

	rt, ok := ecs.ID[RenderTarget](w)
	require.True(t, ok)
	d, ok := w.Descriptor(rt)
	require.True(t, ok)
	assert.Equal(t, []string{"render_target", "z_depth", "flip_y"}, d.FieldNames)
	assert.Equal(t, []schema.Kind{schema.KindU64, schema.KindU32, schema.KindBool}, d.FieldKinds)

	dir, _ := ecs.ID[Direction](w)
	d, _ = w.Descriptor(dir)
	assert.Equal(t, []schema.Kind{schema.KindU8}, d.FieldKinds)

	player, _ := ecs.ID[Player](w)
	d, _ = w.Descriptor(player)
	assert.True(t, d.Tag())
}

func TestInitIsRepeatable(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, Init(w))
	n := len(w.Descriptors())
	require.NoError(t, SetGameConfig(w, 800, 600))

	require.NoError(t, Init(w))
	assert.Len(t, w.Descriptors(), n)

	cfg, err := ecs.GetSingleton[GameConfig](w)
	require.NoError(t, err)
	assert.Equal(t, GameConfig{Width: 800, Height: 600}, cfg.Load())
}

func TestDirOpposite(t *testing.T) {
	for _, d := range []Dir{Up, Down, Left, Right} {
		assert.Equal(t, d, d.Opposite().Opposite(), d.String())
		assert.NotEqual(t, d, d.Opposite())
	}
}
