package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resourceserver.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.WatcherDebounceMs)
	assert.True(t, cfg.AdminHTTPEnabled)
	assert.Equal(t, 19190, cfg.ResourceServerPort)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
resource_server_port = 9000
worker_count = 8
admin_http_enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.ResourceServerPort)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.False(t, cfg.AdminHTTPEnabled)
}

func TestLoad_MissingRequiredKey(t *testing.T) {
	path := writeConfig(t, `
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_data_directory_path")
}

func TestLoad_WorkerCountTooLow(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
worker_count = 1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_count")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}

func TestLoad_EngineModuleResourcesDefaultsEmpty(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.EngineModuleResourceIDs)
}

func TestLoad_EngineModuleResourcesParsed(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
engine_module_resources = mat4:base/default.mat4, mesh:engine/unit_cube.mesh
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.EngineModuleResourceIDs, 2)
	assert.Equal(t, "mat4:base/default.mat4", cfg.EngineModuleResourceIDs[0].String())
	assert.Equal(t, "mesh:engine/unit_cube.mesh", cfg.EngineModuleResourceIDs[1].String())
}

func TestLoad_EngineModuleResourcesInvalidEntry(t *testing.T) {
	path := writeConfig(t, `
source_data_directory_path = /data/src
compiled_resource_directory_path = /data/compiled
packaged_build_compiled_resource_directory_path = /data/packaged
resource_compiler_executable_path = /usr/bin/rescompiler
engine_module_resources = not-a-valid-id
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine_module_resources")
}
