// Package depindex maintains the bidirectional map between resources
// and the source files whose changes should trigger their
// recompilation.
package depindex

import (
	"path/filepath"
	"sync"

	"github.com/relicforge/resourceserver/internal/resource"
)

// Index holds the by_resource / by_file relation described in the
// core spec. The two maps are kept as mutual inverses by
// UpdateDependencies; callers on the single driver goroutine never
// need to synchronize with each other, but the mutex lets
// DependentsOf be called safely from the watcher bridge's debounce
// callback, which runs on its own timer goroutine.
type Index struct {
	mu sync.RWMutex

	byResource map[resource.ID][]string
	byFile     map[string]map[resource.ID]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		byResource: make(map[resource.ID][]string),
		byFile:     make(map[string]map[resource.ID]struct{}),
	}
}

// UpdateDependencies replaces the compile-dependency set recorded for
// id with the resolved absolute paths of newDeps (relative to
// sourceRoot), removing id from every file it was previously
// associated with first.
func (idx *Index) UpdateDependencies(id resource.ID, newDeps []string, sourceRoot string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, f := range idx.byResource[id] {
		if dependents, ok := idx.byFile[f]; ok {
			delete(dependents, id)
			if len(dependents) == 0 {
				delete(idx.byFile, f)
			}
		}
	}

	resolved := make([]string, 0, len(newDeps))
	for _, dep := range newDeps {
		abs := dep
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(sourceRoot, filepath.FromSlash(dep))
		}
		resolved = append(resolved, abs)

		dependents, ok := idx.byFile[abs]
		if !ok {
			dependents = make(map[resource.ID]struct{})
			idx.byFile[abs] = dependents
		}
		dependents[id] = struct{}{}
	}

	if len(resolved) == 0 {
		delete(idx.byResource, id)
	} else {
		idx.byResource[id] = resolved
	}
}

// DependentsOf returns a fresh copy of the resources that depend on
// sourceFile. Callers may safely mutate the index (e.g. via
// UpdateDependencies) while iterating the returned slice.
func (idx *Index) DependentsOf(sourceFile string) []resource.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	dependents, ok := idx.byFile[sourceFile]
	if !ok {
		return nil
	}

	out := make([]resource.ID, 0, len(dependents))
	for id := range dependents {
		out = append(out, id)
	}
	return out
}

// DependenciesOf returns a copy of the compile dependencies currently
// tracked for id.
func (idx *Index) DependenciesOf(id resource.ID) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	deps := idx.byResource[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Len returns the number of resources currently tracked.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byResource)
}
