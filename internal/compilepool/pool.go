// Package compilepool runs compilation tasks on a fixed-size pool of
// goroutines. Each task spawns the external resource compiler as a
// child process and collects its combined output into the owning
// request's log.
package compilepool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/resource"
)

// delimiter marks the end of the compiler's own preamble in its
// combined stdout/stderr stream. Everything up to and including the
// first occurrence (plus one separator byte) is stripped from the
// request log.
const delimiter = "--RESOURCE-COMPILER-LOG--"

// readChunkSize is the size of each read from the compiler's combined
// output pipe.
const readChunkSize = 512

// Result is the fixed exit-code-to-status mapping a compiler process
// reports.
type Result int

const (
	ResultSuccessUpToDate Result = 0
	ResultSuccess         Result = 1
	ResultSuccessWithWarnings Result = 2
)

func statusForExitCode(code int) resource.Status {
	switch Result(code) {
	case ResultSuccessUpToDate:
		return resource.SucceededUpToDate
	case ResultSuccess:
		return resource.Succeeded
	case ResultSuccessWithWarnings:
		return resource.SucceededWithWarnings
	default:
		return resource.Failed
	}
}

// Task owns one Request and the compiler child process used to
// service it, for the duration of the request's Compiling interval.
// After Done reports true, ownership of the Request transfers back to
// whoever submitted the task.
type Task struct {
	Request *resource.Request

	done atomic.Bool
}

// Done reports whether the task's child process has finished (or the
// task was skipped) and the owning Request is now safe to read from
// the caller's goroutine.
func (t *Task) Done() bool { return t.done.Load() }

// Pool is a fixed-concurrency worker pool. Tasks may run in parallel;
// no two tasks ever share a Request.
type Pool struct {
	compilerExe string
	isExiting   func() bool
	logger      *zap.Logger

	tasks chan *Task
	wg    sync.WaitGroup

	metrics *Metrics
}

// New creates a Pool with workerCount goroutines (clamped to at least
// 2, per the core's concurrency contract) that invoke compilerExe for
// every submitted Task. isExiting is polled once at the start of each
// task to support cooperative shutdown.
func New(workerCount int, compilerExe string, isExiting func() bool, logger *zap.Logger) *Pool {
	if workerCount < 2 {
		workerCount = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		compilerExe: compilerExe,
		isExiting:   isExiting,
		logger:      logger,
		tasks:       make(chan *Task, 256),
		metrics:     NewMetrics(),
	}

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	return p
}

// Submit schedules task for execution. The task channel holds 256
// entries; once it is full, Submit blocks until a worker dequeues a
// task.
func (p *Pool) Submit(task *Task) {
	p.tasks <- task
}

// Shutdown stops accepting new work and waits for all in-flight tasks
// to finish naturally; running compilations cannot be aborted.
func (p *Pool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}

// Metrics returns the pool's live compile metrics.
func (p *Pool) Metrics() *Metrics { return p.metrics }

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task *Task) {
	defer task.done.Store(true)

	req := task.Request

	if (p.isExiting != nil && p.isExiting()) || req.IsComplete() {
		return
	}

	args := []string{"-compile", req.CompilerArgs}
	switch {
	case req.ForceRecompile:
		args = append(args, "-force")
	case req.Origin == resource.Package:
		args = append(args, "-package")
	}

	req.Status = resource.Compiling
	req.TimeStarted = time.Now()

	ctx := context.Background()
	cmd := exec.CommandContext(ctx, p.compilerExe, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		req.Status = resource.Failed
		req.Log = "Resource compiler failed to start!"
		req.TimeFinished = time.Now()
		p.metrics.RecordSpawnFailure()
		p.logger.Warn("compiler spawn failed", zap.String("resource_id", req.ID.String()), zap.String("trace_id", req.TraceID), zap.Error(err))
		return
	}

	waitErr := cmd.Wait()
	req.TimeFinished = time.Now()

	exitCode, joinFailed := exitCodeFromError(waitErr)
	if joinFailed {
		req.Status = resource.Failed
		req.Log = "Resource compiler failed to complete!"
		p.metrics.RecordJoinFailure()
		p.logger.Warn("compiler join failed", zap.String("resource_id", req.ID.String()), zap.String("trace_id", req.TraceID), zap.Error(waitErr))
		return
	}

	req.Status = statusForExitCode(exitCode)
	req.Log = stripPreamble(drainChunks(output.Bytes()))

	p.metrics.Record(req.Status, req.TimeFinished.Sub(req.TimeStarted))
}

// drainChunks simulates reading the compiler's combined output in
// fixed-size reads, the shape mandated by the core spec for process
// pipes, while operating over the buffer exec.Cmd already collected.
func drainChunks(all []byte) string {
	var out bytes.Buffer
	for offset := 0; offset < len(all); offset += readChunkSize {
		end := offset + readChunkSize
		if end > len(all) {
			end = len(all)
		}
		out.Write(all[offset:end])
	}
	return out.String()
}

// stripPreamble discards everything up to and including the first
// delimiter occurrence plus one trailing separator byte.
func stripPreamble(log string) string {
	idx := bytes.Index([]byte(log), []byte(delimiter))
	if idx < 0 {
		return log
	}
	rest := idx + len(delimiter)
	if rest < len(log) {
		rest++ // consume the trailing separator byte
	}
	if rest > len(log) {
		rest = len(log)
	}
	return log[rest:]
}

// exitCodeFromError extracts a process exit code from the error
// returned by cmd.Wait, reporting joinFailed when the process could
// not be waited on at all (distinct from a clean non-zero exit).
func exitCodeFromError(err error) (code int, joinFailed bool) {
	if err == nil {
		return 0, false
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), false
	}

	return 0, true
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

// String renders a Result for log messages.
func (r Result) String() string {
	switch r {
	case ResultSuccessUpToDate:
		return "SuccessUpToDate"
	case ResultSuccess:
		return "Success"
	case ResultSuccessWithWarnings:
		return "SuccessWithWarnings"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}
