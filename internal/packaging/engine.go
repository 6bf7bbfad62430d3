// Package packaging implements the transitive install-dependency
// traversal and the Preparing → Packaging → Complete state machine
// that drives it through the request manager.
package packaging

import (
	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/registry"
	"github.com/relicforge/resourceserver/internal/resource"
)

// State is the packaging engine's state machine position.
type State int

const (
	None State = iota
	Preparing
	Packaging
	Complete
)

func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Preparing:
		return "Preparing"
	case Packaging:
		return "Packaging"
	case Complete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Requester is the subset of the request manager the engine needs:
// creating Package-origin requests.
type Requester interface {
	CreateRequestForID(id resource.ID, clientID uint32, origin resource.Origin, extraInfo string) *resource.Request
}

// Engine drives the packaging workflow described in §4.6. It is
// driven exclusively from the server loop's Tick.
type Engine struct {
	registry registry.CompilerRegistry
	logger   *zap.Logger

	moduleResources []resource.ID

	state          State
	mapsToPackage  []resource.ID
	preparing      chan []resource.ID
	requests       []*resource.Request
}

// New constructs an Engine. moduleResources are the runtime
// dependencies of the well-known engine modules (Base, Engine, Game),
// added unconditionally to every packaging run.
func New(reg registry.CompilerRegistry, moduleResources []resource.ID, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{registry: reg, moduleResources: moduleResources, logger: logger}
}

// AddMap appends id to the root set packaged by the next run, if not
// already present.
func (e *Engine) AddMap(id resource.ID) {
	for _, existing := range e.mapsToPackage {
		if existing.Equal(id) {
			return
		}
	}
	e.mapsToPackage = append(e.mapsToPackage, id)
}

// RemoveMap removes id from the root set.
func (e *Engine) RemoveMap(id resource.ID) {
	out := e.mapsToPackage[:0]
	for _, existing := range e.mapsToPackage {
		if !existing.Equal(id) {
			out = append(out, existing)
		}
	}
	e.mapsToPackage = out
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// CanStart reports whether StartPackaging would have an effect.
func (e *Engine) CanStart() bool {
	return (e.state == None || e.state == Complete) && len(e.mapsToPackage) > 0
}

// StartPackaging begins the Preparing stage as a background
// goroutine. It is a no-op if CanStart is false.
func (e *Engine) StartPackaging() {
	if !e.CanStart() {
		return
	}

	e.state = Preparing
	e.preparing = make(chan []resource.ID, 1)

	roots := make([]resource.ID, len(e.mapsToPackage))
	copy(roots, e.mapsToPackage)
	moduleResources := make([]resource.ID, len(e.moduleResources))
	copy(moduleResources, e.moduleResources)

	go func() {
		e.preparing <- e.resolve(roots, moduleResources)
	}()
}

// resolve expands the root set into its transitive install-dependency
// closure, preserving first-seen order. Nodes without a registered
// compiler terminate expansion.
func (e *Engine) resolve(roots, moduleResources []resource.ID) []resource.ID {
	seen := make(map[resource.ID]bool)
	var ordered []resource.ID

	add := func(id resource.ID) {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}

	for _, id := range moduleResources {
		add(id)
	}

	var visit func(id resource.ID)
	visit = func(id resource.ID) {
		compiler, ok := e.registry.CompilerFor(id.TypeTag())
		if !ok {
			return
		}

		add(id)

		deps, err := compiler.InstallDependencies(id)
		if err != nil {
			e.logger.Warn("install dependency resolution failed", zap.String("resource_id", id.String()), zap.Error(err))
			return
		}

		for _, dep := range deps {
			if !seen[dep] {
				visit(dep)
			}
		}
	}

	for _, root := range roots {
		visit(root)
	}

	return ordered
}

// Tick advances the state machine: it checks for a completed Preparing
// result and, once in Packaging, checks whether every created request
// has reached a terminal status.
func (e *Engine) Tick(requester Requester) {
	switch e.state {
	case Preparing:
		select {
		case resolved := <-e.preparing:
			e.requests = e.requests[:0]
			for _, id := range resolved {
				e.requests = append(e.requests, requester.CreateRequestForID(id, 0, resource.Package, "Packaging build"))
			}
			e.preparing = nil
			e.state = Packaging
		default:
		}

	case Packaging:
		for _, req := range e.requests {
			if !req.IsComplete() {
				return
			}
		}
		e.requests = nil
		e.state = Complete
	}
}

// Progress returns a monotonic-within-a-run hint in [0,1]; it is not
// guaranteed monotonic across state transitions.
func (e *Engine) Progress() float64 {
	switch e.state {
	case Preparing:
		return 0.1
	case Packaging:
		if len(e.requests) == 0 {
			return 0.05
		}
		complete := 0
		for _, req := range e.requests {
			if req.IsComplete() {
				complete++
			}
		}
		fraction := float64(complete) / float64(len(e.requests))
		return 0.05 + 0.95*fraction
	default:
		return 1.0
	}
}
