// Package requestmgr implements the request lifecycle and dispatch
// engine: creating compilation requests, driving the worker pool,
// reaping completed tasks, and routing outcomes to the client fanout.
package requestmgr

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/compilepool"
	"github.com/relicforge/resourceserver/internal/depindex"
	"github.com/relicforge/resourceserver/internal/registry"
	"github.com/relicforge/resourceserver/internal/resource"
)

// Notifier routes completed-request outcomes to connected clients. It
// is implemented by the client fanout component; requestmgr depends
// only on this narrow interface to avoid an import cycle.
type Notifier interface {
	NotifyUpdated(id resource.ID, filePath, log string)
	NotifyRequestComplete(clientID uint32, id resource.ID, filePath, log string)
}

// Option adjusts a freshly-constructed Request before it is handed to
// the pool.
type Option func(*resource.Request)

// WithForceRecompile flags the request to pass -force rather than the
// origin-derived flag to the compiler. It is the plug-in point
// spec.md §9(a) anticipates for a future force-rebuild command; no
// caller in this core sets it yet.
func WithForceRecompile() Option {
	return func(r *resource.Request) {
		r.ForceRecompile = true
	}
}

// Roots bundles the filesystem roots a request's paths are resolved
// against.
type Roots struct {
	SourceData        string
	CompiledResource  string
	PackagedResource  string
}

// Manager owns the master request list and the active task set, and
// is driven exclusively from the single server-loop goroutine.
type Manager struct {
	pool       *compilepool.Pool
	depIndex   *depindex.Index
	descriptor registry.DescriptorLoader
	notifier   Notifier
	roots      Roots
	logger     *zap.Logger

	requests []*resource.Request
	active   []*compilepool.Task

	scheduledTasks int
	cleanupPending bool
	isExiting      bool

	packagingBusy func() bool
}

// New constructs a Manager. notifier may be nil in contexts (such as
// packaging-only tooling) where no client fanout exists yet; in that
// case reap results are computed but never delivered.
func New(pool *compilepool.Pool, depIndex *depindex.Index, descriptor registry.DescriptorLoader, notifier Notifier, roots Roots, logger *zap.Logger) *Manager {
	if descriptor == nil {
		descriptor = registry.NullDescriptorLoader{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		pool:       pool,
		depIndex:   depIndex,
		descriptor: descriptor,
		notifier:   notifier,
		roots:      roots,
		logger:     logger,
	}
}

// CreateRequest creates a request for rawID and schedules it onto the
// worker pool, returning the new Request. Invalid resource IDs
// synthesize an already-failed request rather than erroring, so
// downstream handling stays uniform. origin == External requires a
// non-zero clientID; every other origin requires clientID == 0 — both
// are programmer errors if violated and will panic. Trailing Options
// (currently only WithForceRecompile) let a caller flag the request
// before it is handed to the pool.
func (m *Manager) CreateRequest(rawID string, clientID uint32, origin resource.Origin, extraInfo string, opts ...Option) *resource.Request {
	if origin == resource.External && clientID == 0 {
		panic("requestmgr: External requests must carry a non-zero client id")
	}
	if origin != resource.External && clientID != 0 {
		panic("requestmgr: internal requests must carry a zero client id")
	}

	traceID := uuid.NewString()

	id, err := resource.ParseID(rawID)
	var req *resource.Request
	if err != nil {
		req = resource.NewFailedRequest(rawID, clientID, origin, err, traceID)
	} else {
		req = resource.NewValidRequest(id, clientID, origin, extraInfo, m.roots.SourceData, m.roots.CompiledResource, m.roots.PackagedResource, traceID)
	}

	for _, opt := range opts {
		opt(req)
	}

	m.requests = append(m.requests, req)

	task := &compilepool.Task{Request: req}
	m.pool.Submit(task)
	m.active = append(m.active, task)
	m.scheduledTasks++

	m.logger.Debug("request created",
		zap.String("resource_id", req.ID.String()),
		zap.String("origin", origin.String()),
		zap.Uint32("client_id", clientID),
		zap.String("trace_id", traceID),
	)

	if err == nil && !m.descriptor.IsEntityDescriptor(id.TypeTag()) {
		deps, loadErr := m.descriptor.CompileDependencies(req.SourceFile)
		if loadErr != nil {
			m.logger.Debug("descriptor load failed, proceeding with empty dependency set",
				zap.String("resource_id", id.String()), zap.Error(loadErr))
			deps = nil
		}
		m.depIndex.UpdateDependencies(id, deps, m.roots.SourceData)
	}

	return req
}

// CreateRequestForID is a convenience wrapper over CreateRequest for
// callers (the watcher bridge, the packaging engine) that already hold
// a validated resource.ID.
func (m *Manager) CreateRequestForID(id resource.ID, clientID uint32, origin resource.Origin, extraInfo string) *resource.Request {
	return m.CreateRequest(id.String(), clientID, origin, extraInfo)
}

// SetPackagingBusyFunc wires the packaging engine's busy check into
// IsBusy. The engine lives in a separate package to avoid an import
// cycle (it depends on Manager through the Requester interface), so
// the server wires this callback at startup instead.
func (m *Manager) SetPackagingBusyFunc(f func() bool) {
	m.packagingBusy = f
}

// IsBusy reports whether any request is outstanding or a packaging
// run is in progress.
func (m *Manager) IsBusy() bool {
	if m.scheduledTasks != 0 {
		return true
	}
	return m.packagingBusy != nil && m.packagingBusy()
}

// RequestCleanup defers a purge of all complete requests to the next
// Tick.
func (m *Manager) RequestCleanup() {
	m.cleanupPending = true
}

// Tick reaps completed tasks, routes their outcomes to the notifier,
// and honors a pending cleanup request. It must be called once per
// server loop iteration.
func (m *Manager) Tick() {
	m.processCompletedRequests()

	if m.cleanupPending {
		m.cleanup()
		m.cleanupPending = false
	}
}

// processCompletedRequests implements the reaping algorithm of
// §4.1: assert terminal status, route notifications (skipped while
// exiting), dispose the task.
func (m *Manager) processCompletedRequests() {
	remaining := m.active[:0]

	for _, task := range m.active {
		if !task.Done() {
			remaining = append(remaining, task)
			continue
		}

		req := task.Request
		if !req.IsComplete() {
			panic("requestmgr: reaped task whose request is not terminal")
		}

		if !m.isExiting && m.notifier != nil {
			m.routeOutcome(req)
		}

		m.scheduledTasks--
	}

	m.active = remaining
}

func (m *Manager) routeOutcome(req *resource.Request) {
	filePath, log := "", ""
	if req.HasSucceeded() {
		filePath = req.DestinationFile
	} else {
		log = req.Log
	}

	if req.IsInternalRequest() {
		if req.Status == resource.SucceededUpToDate {
			return
		}
		m.notifier.NotifyUpdated(req.ID, filePath, log)
		return
	}

	m.notifier.NotifyRequestComplete(req.ClientID, req.ID, filePath, log)
}

// cleanup removes every terminal request from the master list. The
// spec describes a reverse-order scan with in-place removal; a
// forward filter preserving relative order is the same purge and
// avoids the index-shift bookkeeping a literal reverse scan needs.
func (m *Manager) cleanup() {
	kept := m.requests[:0]
	for _, req := range m.requests {
		if !req.IsComplete() {
			kept = append(kept, req)
		}
	}
	m.requests = kept
}

// Requests returns the current master request list. Callers must not
// retain it across a Tick.
func (m *Manager) Requests() []*resource.Request {
	return m.requests
}

// Metrics exposes the worker pool's compile metrics for the admin HTTP
// surface.
func (m *Manager) Metrics() *compilepool.Metrics {
	return m.pool.Metrics()
}

// Shutdown drains the pool, performs one final reap with notifications
// suppressed, and disposes every request.
func (m *Manager) Shutdown() {
	m.isExiting = true
	m.pool.Shutdown()
	m.processCompletedRequests()
	m.requests = nil
	m.active = nil
}
