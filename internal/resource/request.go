package resource

import (
	"fmt"
	"time"
)

// Origin records who asked for a resource to be compiled. It governs
// the destination root, the compiler flag, and the fanout policy for
// the eventual result.
type Origin int

const (
	// External requests originate from a connected client over the
	// network transport.
	External Origin = iota
	// FileWatcher requests are synthesized when a watched source file
	// changes.
	FileWatcher
	// Package requests are synthesized by the packaging engine's
	// transitive install-dependency traversal.
	Package
)

func (o Origin) String() string {
	switch o {
	case External:
		return "External"
	case FileWatcher:
		return "FileWatcher"
	case Package:
		return "Package"
	default:
		return "Unknown"
	}
}

// Status is a request's position in its lifecycle state machine. It is
// monotonic: once a request reaches a terminal status it never moves
// again.
type Status int

const (
	Pending Status = iota
	Compiling
	SucceededUpToDate
	Succeeded
	SucceededWithWarnings
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Compiling:
		return "Compiling"
	case SucceededUpToDate:
		return "SucceededUpToDate"
	case Succeeded:
		return "Succeeded"
	case SucceededWithWarnings:
		return "SucceededWithWarnings"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether status is anything other than Pending or
// Compiling.
func (s Status) IsTerminal() bool {
	return s != Pending && s != Compiling
}

// HasSucceeded reports whether status is one of the three success
// variants.
func (s Status) HasSucceeded() bool {
	return s == SucceededUpToDate || s == Succeeded || s == SucceededWithWarnings
}

// Request is the value object for a single compilation request and its
// lifecycle state. It is owned by the request manager except during
// the [Compiling] interval, when it is owned exclusively by the worker
// task executing it.
type Request struct {
	ID ID

	// TraceID correlates a request's log lines across the manager, the
	// worker pool, and the fanout notifier. It carries no meaning to
	// the lifecycle state machine itself.
	TraceID string

	ClientID uint32
	Origin   Origin

	CompilerArgs    string
	SourceFile      string
	DestinationFile string

	Status Status

	TimeStarted  time.Time
	TimeFinished time.Time

	Log       string
	ExtraInfo string

	// ForceRecompile is consulted by the worker pool to pass -force on
	// the compiler command line. Nothing in this core sets it yet; it
	// exists as the plug-in point for a future force-rebuild command.
	ForceRecompile bool
}

// NewValidRequest builds a Pending request for a well-formed ID,
// resolving its source and destination paths per origin.
func NewValidRequest(id ID, clientID uint32, origin Origin, extraInfo, sourceRoot, compiledRoot, packagedRoot, traceID string) *Request {
	destRoot := compiledRoot
	if origin == Package {
		destRoot = packagedRoot
	}

	return &Request{
		ID:              id,
		TraceID:         traceID,
		ClientID:        clientID,
		Origin:          origin,
		CompilerArgs:    id.DataPath(),
		SourceFile:      id.SourcePath(sourceRoot),
		DestinationFile: id.DestinationPath(destRoot),
		Status:          Pending,
		ExtraInfo:       extraInfo,
	}
}

// NewFailedRequest synthesizes an already-failed request for an
// invalid resource ID, or any other create-time validation failure.
// It is still enqueued so downstream handling stays uniform.
func NewFailedRequest(rawID string, clientID uint32, origin Origin, cause error, traceID string) *Request {
	return &Request{
		TraceID:  traceID,
		ClientID: clientID,
		Origin:   origin,
		Status:   Failed,
		Log:      fmt.Sprintf("Error: Invalid resource ID (%s): %v", rawID, cause),
	}
}

// IsComplete reports whether the request has reached a terminal state.
func (r *Request) IsComplete() bool {
	return r.Status.IsTerminal()
}

// HasSucceeded reports whether the request terminated successfully.
func (r *Request) HasSucceeded() bool {
	return r.Status.HasSucceeded()
}

// IsInternalRequest reports whether the request originated from the
// watcher or the packaging engine rather than an external client.
func (r *Request) IsInternalRequest() bool {
	return r.Origin == FileWatcher || r.Origin == Package
}
