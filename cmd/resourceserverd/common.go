package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/compilepool"
	"github.com/relicforge/resourceserver/internal/config"
	"github.com/relicforge/resourceserver/internal/depindex"
	"github.com/relicforge/resourceserver/internal/packaging"
	"github.com/relicforge/resourceserver/internal/registry"
	"github.com/relicforge/resourceserver/internal/requestmgr"
	"github.com/relicforge/resourceserver/internal/watch"
)

// components bundles the core pieces a subcommand wires around a
// loaded config. serve and package differ only in what they do with
// one of these afterward: serve hands it to a full server.Server,
// package drives the engine and manager directly to completion.
type components struct {
	cfg     *config.Config
	pool    *compilepool.Pool
	manager *requestmgr.Manager
	bridge  *watch.Bridge
	engine  *packaging.Engine
	reg     *registry.MemoryRegistry
}

// bootstrap loads cfg from configPath and wires every core component
// around it. Only the worker pool's goroutines start here; the watcher
// is not started. notifier may be nil for
// tooling (the package subcommand) that has no client fanout.
// isExiting is threaded straight into the worker pool. The compiler
// registry and descriptor loader here are the reference
// implementations from internal/registry; a real deployment
// substitutes its own, per spec.md's Non-goals. The MemoryRegistry is
// left empty, so packaging expands and compiles no resource through
// it. The packaging engine's
// unconditional module resources come straight from
// cfg.EngineModuleResourceIDs (the engine_module_resources config key).
func bootstrap(configPath string, logger *zap.Logger, notifier requestmgr.Notifier, isExiting func() bool) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	reg := registry.NewMemoryRegistry()
	idx := depindex.New()

	pool := compilepool.New(cfg.WorkerCount, cfg.ResourceCompilerExecutablePath, isExiting, logger)

	manager := requestmgr.New(pool, idx, registry.NullDescriptorLoader{}, notifier, requestmgr.Roots{
		SourceData:       cfg.SourceDataDirectoryPath,
		CompiledResource: cfg.CompiledResourceDirectoryPath,
		PackagedResource: cfg.PackagedBuildCompiledResourceDirectoryPath,
	}, logger)

	bridge, err := watch.NewBridge(cfg.SourceDataDirectoryPath, nil, time.Duration(cfg.WatcherDebounceMs)*time.Millisecond, idx, validResourceTag, logger)
	if err != nil {
		return nil, err
	}

	engine := packaging.New(reg, cfg.EngineModuleResourceIDs, logger)
	manager.SetPackagingBusyFunc(func() bool {
		return engine.State() != packaging.None && engine.State() != packaging.Complete
	})

	return &components{
		cfg:     cfg,
		pool:    pool,
		manager: manager,
		bridge:  bridge,
		engine:  engine,
		reg:     reg,
	}, nil
}

// validResourceTag accepts any well-formed four-character type tag;
// the real set of registered resource types lives in the type
// registry this core treats as an out-of-scope collaborator.
func validResourceTag(tag string) bool {
	return len(tag) == 4
}
