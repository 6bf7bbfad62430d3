package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLifecycle(t *testing.T) {
	assert.False(t, Pending.IsTerminal())
	assert.False(t, Compiling.IsTerminal())
	for _, s := range []Status{SucceededUpToDate, Succeeded, SucceededWithWarnings, Failed} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	assert.True(t, SucceededUpToDate.HasSucceeded())
	assert.True(t, Succeeded.HasSucceeded())
	assert.True(t, SucceededWithWarnings.HasSucceeded())
	assert.False(t, Failed.HasSucceeded())
	assert.False(t, Pending.HasSucceeded())
}

func TestNewValidRequest_DestinationRootByOrigin(t *testing.T) {
	id, err := ParseID("mesh:a/b.mesh")
	require.NoError(t, err)

	external := NewValidRequest(id, 7, External, "", "/src", "/compiled", "/packaged", "trace-1")
	assert.Equal(t, Pending, external.Status)
	assert.Contains(t, external.DestinationFile, "compiled")
	assert.Equal(t, "a/b.mesh", external.CompilerArgs)

	pkg := NewValidRequest(id, 0, Package, "", "/src", "/compiled", "/packaged", "trace-2")
	assert.Contains(t, pkg.DestinationFile, "packaged")
}

func TestNewFailedRequest(t *testing.T) {
	req := NewFailedRequest(":/", 7, External, errors.New("missing type tag separator"), "trace")
	assert.Equal(t, Failed, req.Status)
	assert.Contains(t, req.Log, "Invalid resource ID")
	assert.True(t, req.IsComplete())
	assert.False(t, req.HasSucceeded())
}

func TestIsInternalRequest(t *testing.T) {
	id, _ := ParseID("mesh:a.mesh")

	external := &Request{ID: id, Origin: External}
	watcher := &Request{ID: id, Origin: FileWatcher}
	pkg := &Request{ID: id, Origin: Package}

	assert.False(t, external.IsInternalRequest())
	assert.True(t, watcher.IsInternalRequest())
	assert.True(t, pkg.IsInternalRequest())
}
