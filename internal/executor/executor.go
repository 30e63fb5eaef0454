// Package executor implements the per-task execution pipeline (spec.md
// §4.3): cache consult, command validation, process spawn with streaming
// capture, and cache publish.
package executor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"polykit/internal/artifact"
	"polykit/internal/descriptor"
	"polykit/internal/fingerprint"
	"polykit/internal/polyerr"
	"polykit/internal/remotecache"
	"polykit/internal/scheduler"
	"polykit/internal/taskcache"
)

// Options configures one Executor instance.
type Options struct {
	WorkspaceRoot string
	EnvAllowlist  []string
	InputPatterns []string
	StrictCommand bool
	RemoteCache   remotecache.Backend // nil disables the remote tier
	TaskCache     *taskcache.Cache    // nil disables the local tier
	Sink          LineSink            // nil disables streaming
	Logger        hclog.Logger
}

// Executor implements scheduler.Executor.
type Executor struct {
	opts Options
}

// New constructs an Executor.
func New(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Executor{opts: opts}
}

var _ scheduler.Executor = (*Executor)(nil)

// RunTask executes the full cache-consult → spawn → cache-publish pipeline
// for one package task (spec.md §4.3 "Per-task execution pipeline").
func (e *Executor) RunTask(ctx context.Context, pkg *descriptor.Package, taskName string) (scheduler.Outcome, error) {
	task, ok := findTask(pkg, taskName)
	if !ok {
		return scheduler.Outcome{}, &polyerr.TaskExecutionError{
			Package:   pkg.Name,
			Task:      taskName,
			Message:   "unknown task",
			Available: taskNames(pkg),
		}
	}

	absPath := filepath.Join(e.opts.WorkspaceRoot, pkg.Path)
	key, fpErr := fingerprint.Compute(fingerprint.Inputs{
		PackageName:    pkg.Name,
		AbsPackagePath: absPath,
		TaskName:       taskName,
		Command:        task.Command,
		DirectDeps:     pkg.Deps,
		EnvAllowlist:   e.opts.EnvAllowlist,
		InputPatterns:  e.opts.InputPatterns,
		Language:       string(pkg.Language),
	})

	var cacheKeyID string
	if fpErr == nil {
		cacheKeyID = key.ID()

		if e.opts.RemoteCache != nil {
			if outcome, hit := e.tryRemoteCache(ctx, pkg, taskName, absPath, cacheKeyID); hit {
				return outcome, nil
			}
		}
		if e.opts.TaskCache != nil {
			if result, err := e.opts.TaskCache.Get(cacheKeyID); err == nil {
				return scheduler.Outcome{
					PackageName: pkg.Name,
					TaskName:    taskName,
					Success:     result.Success,
					Stdout:      result.Stdout,
					Stderr:      result.Stderr,
				}, nil
			}
		}
	} else {
		e.opts.Logger.Debug("fingerprint unavailable, skipping cache", "package", pkg.Name, "task", taskName, "error", fpErr)
	}

	if err := ValidateCommand(task.Command, e.opts.StrictCommand); err != nil {
		return scheduler.Outcome{}, err
	}

	result, err := spawn(ctx, absPath, pkg.Name, task.Command, e.opts.Sink)
	if err != nil {
		return scheduler.Outcome{}, err
	}

	outcome := scheduler.Outcome{
		PackageName: pkg.Name,
		TaskName:    taskName,
		Success:     result.Success,
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
	}

	if result.Success && cacheKeyID != "" {
		e.publish(ctx, pkg, taskName, task.Command, absPath, cacheKeyID, outcome)
	}

	return outcome, nil
}

// tryRemoteCache attempts a remote-cache hit. A verification failure or
// network error is demoted to a cache miss, never surfaced as a task error
// (spec.md §4.3 step 2).
func (e *Executor) tryRemoteCache(ctx context.Context, pkg *descriptor.Package, taskName, absPath, cacheKeyID string) (scheduler.Outcome, bool) {
	compressed, err := e.opts.RemoteCache.Get(ctx, cacheKeyID)
	if err != nil {
		return scheduler.Outcome{}, false
	}
	a, err := artifact.FromCompressed(compressed)
	if err != nil {
		e.opts.Logger.Warn("remote artifact failed to parse, treating as miss", "package", pkg.Name, "task", taskName)
		return scheduler.Outcome{}, false
	}
	if err := (artifact.Verifier{}).Verify(a, ""); err != nil {
		e.opts.Logger.Warn("remote artifact failed verification, treating as miss", "package", pkg.Name, "task", taskName)
		return scheduler.Outcome{}, false
	}
	if err := a.Extract(absPath); err != nil {
		e.opts.Logger.Warn("remote artifact failed to extract, treating as miss", "package", pkg.Name, "task", taskName)
		return scheduler.Outcome{}, false
	}
	return scheduler.Outcome{PackageName: pkg.Name, TaskName: taskName, Success: true}, true
}

// publish stores the TaskResult locally and uploads an artifact to the
// remote cache. Cache-related failures here never change a successful
// outcome (spec.md §7 "cache-related errors never mask a real task
// outcome").
func (e *Executor) publish(ctx context.Context, pkg *descriptor.Package, taskName, command, absPath, cacheKeyID string, outcome scheduler.Outcome) {
	if e.opts.TaskCache != nil {
		_ = e.opts.TaskCache.Put(cacheKeyID, taskcache.Result{
			PackageName: pkg.Name,
			TaskName:    taskName,
			Success:     outcome.Success,
			Stdout:      outcome.Stdout,
			Stderr:      outcome.Stderr,
		})
	}
	if e.opts.RemoteCache == nil {
		return
	}

	go func() {
		outputs, err := collectOutputs(absPath)
		if err != nil {
			e.opts.Logger.Warn("collecting outputs for remote publish failed", "package", pkg.Name, "task", taskName, "error", err)
			return
		}
		a, err := artifact.New(pkg.Name, taskName, command, cacheKeyID, outputs, time.Now().Unix())
		if err != nil {
			e.opts.Logger.Warn("building artifact for remote publish failed", "package", pkg.Name, "task", taskName, "error", err)
			return
		}
		if err := e.opts.RemoteCache.Put(ctx, cacheKeyID, a.Compressed); err != nil {
			e.opts.Logger.Warn("remote artifact publish failed", "package", pkg.Name, "task", taskName, "error", err)
		}
	}()
}

// collectOutputs reads every regular file under dir into memory, keyed by
// its slash-form relative path, for artifact construction.
func collectOutputs(dir string) (map[string][]byte, error) {
	outputs := make(map[string][]byte)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		outputs[filepath.ToSlash(rel)] = data
		return nil
	})
	return outputs, err
}

func findTask(pkg *descriptor.Package, name string) (descriptor.Task, bool) {
	for _, t := range pkg.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return descriptor.Task{}, false
}

func taskNames(pkg *descriptor.Package) []string {
	names := make([]string, len(pkg.Tasks))
	for i, t := range pkg.Tasks {
		names[i] = t.Name
	}
	return names
}
