package native

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

func TestOpenMissingLibrary(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "libtoxoid_missing.so"), nil)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, host.ErrUnresolved)
}
