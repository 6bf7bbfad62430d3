package watch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicforge/resourceserver/internal/depindex"
	"github.com/relicforge/resourceserver/internal/resource"
)

func validTag(tag string) bool { return tag == "mesh" }

func TestBridge_ResourceFileChange(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	b, err := NewBridge(root, nil, 20*time.Millisecond, idx, validTag, nil)
	require.NoError(t, err)

	b.handleOne(filepath.Join(root, "a/b.mesh"))

	pending := b.Drain()
	require.Len(t, pending, 1)
	assert.Equal(t, "mesh:a/b.mesh", pending[0].ID.String())
}

func TestBridge_DependencyFileChange(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	realMatID, err := resource.ParseID("mat4:x.mat4")
	require.NoError(t, err)

	depFile := filepath.Join(root, "shaders/common.hlsl")
	idx.UpdateDependencies(realMatID, []string{"shaders/common.hlsl"}, root)

	b, err := NewBridge(root, nil, 20*time.Millisecond, idx, func(string) bool { return false }, nil)
	require.NoError(t, err)

	b.handleOne(depFile)

	pending := b.Drain()
	require.Len(t, pending, 1)
	assert.Equal(t, realMatID, pending[0].ID)
	assert.Contains(t, pending[0].ExtraInfo, "shaders/common.hlsl")
}

func TestBridge_UnknownFileIsNoOp(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	b, err := NewBridge(root, nil, 20*time.Millisecond, idx, func(string) bool { return false }, nil)
	require.NoError(t, err)

	b.handleOne(filepath.Join(root, "unrelated.txt"))

	assert.Empty(t, b.Drain())
}

func TestBridge_DrainIsOneShot(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	b, err := NewBridge(root, nil, 20*time.Millisecond, idx, validTag, nil)
	require.NoError(t, err)

	b.handleOne(filepath.Join(root, "a.mesh"))
	require.Len(t, b.Drain(), 1)
	assert.Empty(t, b.Drain())
}
