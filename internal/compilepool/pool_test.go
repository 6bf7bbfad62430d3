package compilepool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicforge/resourceserver/internal/resource"
)

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	require.Eventually(t, task.Done, 2*time.Second, 5*time.Millisecond)
}

func TestExecute_SpawnFailure(t *testing.T) {
	pool := New(2, "/nonexistent/compiler/binary", func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, resource.Failed, req.Status)
	assert.Equal(t, "Resource compiler failed to start!", req.Log)
	assert.False(t, req.TimeFinished.Before(req.TimeStarted))
}

func TestExecute_SkipsWhenAlreadyComplete(t *testing.T) {
	pool := New(2, "/nonexistent/compiler/binary", func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), Status: resource.Failed, Log: "preexisting"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, "preexisting", req.Log)
}

func TestExecute_SkipsWhenExiting(t *testing.T) {
	pool := New(2, "/nonexistent/compiler/binary", func() bool { return true }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh")}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, resource.Pending, req.Status)
}

func TestExecute_SuccessExitCodeMapping(t *testing.T) {
	script := fakeCompiler(t, "exit 1\n")
	pool := New(2, script, func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, resource.Succeeded, req.Status)
}

func TestExecute_UnmappedExitCodeIsFailed(t *testing.T) {
	script := fakeCompiler(t, "exit 99\n")
	pool := New(2, script, func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, resource.Failed, req.Status)
}

func TestExecute_StripsPreambleDelimiter(t *testing.T) {
	script := fakeCompiler(t, "echo 'engine banner'\necho -n '"+delimiter+"\n'\necho -n 'actual log body'\nexit 0\n")
	pool := New(2, script, func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, "actual log body", req.Log)
	assert.NotContains(t, req.Log, "engine banner")
}

func TestExecute_NoDelimiterKeepsFullLog(t *testing.T) {
	script := fakeCompiler(t, "echo -n 'no delimiter here'\nexit 0\n")
	pool := New(2, script, func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh"}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Equal(t, "no delimiter here", req.Log)
}

func TestExecute_ForceAndPackageFlagsMutuallyExclusive(t *testing.T) {
	script := fakeCompiler(t, "echo -n \"$@\"\nexit 0\n")

	pool := New(2, script, func() bool { return false }, nil)
	defer pool.Shutdown()

	req := &resource.Request{ID: mustParseID(t, "mesh:a.mesh"), CompilerArgs: "a.mesh", Origin: resource.Package, ForceRecompile: true}
	task := &Task{Request: req}
	pool.Submit(task)

	waitDone(t, task)
	assert.Contains(t, req.Log, "-force")
	assert.NotContains(t, req.Log, "-package")
}

func TestNew_ClampsWorkerCount(t *testing.T) {
	pool := New(1, "/bin/true", func() bool { return false }, nil)
	defer pool.Shutdown()
	assert.NotNil(t, pool)
}

func mustParseID(t *testing.T, raw string) resource.ID {
	t.Helper()
	id, err := resource.ParseID(raw)
	require.NoError(t, err)
	return id
}

// fakeCompiler writes a shell script to a temp dir and returns its
// path, standing in for the external resource compiler executable.
func fakeCompiler(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-compiler.sh")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
