// Package config loads the resource server's ini-backed settings file,
// generalizing the teacher's viper-based YAML loader to the wire
// format this server's external interface requires.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/relicforge/resourceserver/internal/resource"
)

// Config is the resource server's resolved configuration.
type Config struct {
	SourceDataDirectoryPath                     string `mapstructure:"source_data_directory_path"`
	CompiledResourceDirectoryPath               string `mapstructure:"compiled_resource_directory_path"`
	PackagedBuildCompiledResourceDirectoryPath  string `mapstructure:"packaged_build_compiled_resource_directory_path"`
	ResourceCompilerExecutablePath              string `mapstructure:"resource_compiler_executable_path"`
	ResourceServerPort                          int    `mapstructure:"resource_server_port"`

	WorkerCount       int  `mapstructure:"worker_count"`
	WatcherDebounceMs int  `mapstructure:"watcher_debounce_ms"`
	AdminHTTPEnabled  bool `mapstructure:"admin_http_enabled"`

	// EngineModuleResources holds the raw, comma-separated resource ids
	// fed verbatim from the engine_module_resources key.
	EngineModuleResources string `mapstructure:"engine_module_resources"`

	// EngineModuleResourceIDs is EngineModuleResources parsed and
	// validated by Load. These are the runtime dependencies of the
	// well-known engine modules (Base, Engine, Game) that §4.6 step 1
	// adds unconditionally to every packaging run.
	EngineModuleResourceIDs []resource.ID `mapstructure:"-"`
}

// Load reads an ini configuration file at path, applies environment
// overrides, and validates the required fields are present.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("worker_count", 4)
	v.SetDefault("watcher_debounce_ms", 100)
	v.SetDefault("admin_http_enabled", true)
	v.SetDefault("resource_server_port", 19190)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// The ini decoder nests all keys from this section-less file under
	// a synthetic "default" section; lift them back to the top level so
	// they line up with the mapstructure tags above and with env/flag
	// overrides.
	if section, ok := v.Get("default").(map[string]any); ok {
		if err := v.MergeConfigMap(section); err != nil {
			return nil, fmt.Errorf("failed to normalize config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ids, err := parseEngineModuleResources(cfg.EngineModuleResources)
	if err != nil {
		return nil, err
	}
	cfg.EngineModuleResourceIDs = ids

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// parseEngineModuleResources splits a comma-separated list of resource
// ids, skipping blank entries, and validates each with resource.ParseID.
func parseEngineModuleResources(raw string) ([]resource.ID, error) {
	var ids []resource.ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := resource.ParseID(part)
		if err != nil {
			return nil, fmt.Errorf("config: invalid engine_module_resources entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"source_data_directory_path":                       cfg.SourceDataDirectoryPath,
		"compiled_resource_directory_path":                 cfg.CompiledResourceDirectoryPath,
		"packaged_build_compiled_resource_directory_path":  cfg.PackagedBuildCompiledResourceDirectoryPath,
		"resource_compiler_executable_path":                cfg.ResourceCompilerExecutablePath,
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("config: missing required key %q", key)
		}
	}

	if cfg.WorkerCount < 2 {
		return fmt.Errorf("config: worker_count must be >= 2, got %d", cfg.WorkerCount)
	}

	if cfg.ResourceServerPort <= 0 || cfg.ResourceServerPort > 65535 {
		return fmt.Errorf("config: resource_server_port out of range: %d", cfg.ResourceServerPort)
	}

	return nil
}
