package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/depindex"
	"github.com/relicforge/resourceserver/internal/resource"
)

// PendingChange is one resource affected by a settled file-system
// change, queued for the driver to turn into a request on its next
// tick. Request creation mutates shared core state and so happens
// only on the driver thread; the debounce timer that discovers a
// settled change runs on its own goroutine.
type PendingChange struct {
	ID        resource.ID
	ExtraInfo string
}

// Bridge translates settled file-system change batches into queued
// compile requests, using the dependency index to find the resources
// that depend on a changed, non-resource file.
type Bridge struct {
	watcher    *FileWatcher
	depIndex   *depindex.Index
	sourceRoot string
	validTag   func(tag string) bool
	logger     *zap.Logger
	pending    chan PendingChange
}

// NewBridge wires a FileWatcher rooted at sourceRoot to depIndex.
// validTag reports whether a file extension is a registered resource
// type four-cc; it is supplied by the type registry, which is out of
// scope for this core.
func NewBridge(sourceRoot string, ignored []string, debounce time.Duration, depIndex *depindex.Index, validTag func(tag string) bool, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bridge{
		depIndex:   depIndex,
		sourceRoot: sourceRoot,
		validTag:   validTag,
		logger:     logger,
		pending:    make(chan PendingChange, 4096),
	}

	watcher, err := NewFileWatcher(sourceRoot, ignored, debounce, b.handleChanges)
	if err != nil {
		return nil, err
	}
	b.watcher = watcher

	return b, nil
}

// Start begins watching the source-data root.
func (b *Bridge) Start() error { return b.watcher.Start() }

// Stop stops watching.
func (b *Bridge) Stop() error { return b.watcher.Stop() }

// Drain returns every PendingChange queued since the last Drain,
// without blocking. Called once per server tick (§4.8 step 5).
func (b *Bridge) Drain() []PendingChange {
	var out []PendingChange
	for {
		select {
		case item := <-b.pending:
			out = append(out, item)
		default:
			return out
		}
	}
}

// handleChanges is the debounced FileWatcher callback: for each
// settled file, classify it as either a resource itself or a compile
// dependency of other resources, per §4.5.
func (b *Bridge) handleChanges(files []string) {
	for _, path := range files {
		b.handleOne(path)
	}
}

func (b *Bridge) handleOne(path string) {
	rel, err := filepath.Rel(b.sourceRoot, path)
	if err != nil {
		return
	}

	if id, ok := resource.IDFromDataPath(rel, b.validTag); ok {
		b.enqueue(PendingChange{ID: id, ExtraInfo: "External file system change detected!"})
		return
	}

	dependents := b.depIndex.DependentsOf(path)
	for _, dependent := range dependents {
		extra := fmt.Sprintf("Compile dependency change detected (%s)!", filepath.ToSlash(path))
		b.enqueue(PendingChange{ID: dependent, ExtraInfo: extra})
	}
}

func (b *Bridge) enqueue(change PendingChange) {
	select {
	case b.pending <- change:
	default:
		b.logger.Warn("pending change queue full, dropping", zap.String("resource_id", change.ID.String()))
	}
}
