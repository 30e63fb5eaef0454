// Package polyerr defines the typed error kinds produced by polykit's
// scanner, graph, scheduler and cache subsystems.
package polyerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// PackageNotFoundError is returned when a dependency name does not resolve
// to a package in the current scan snapshot.
type PackageNotFoundError struct {
	Name string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package not found: %s", e.Name)
}

// CircularDependencyError names one package participating in a dependency
// cycle detected during graph construction or task-subgraph ordering.
type CircularDependencyError struct {
	Package string
	Cycle   []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("circular dependency involving %s", e.Package)
	}
	return fmt.Sprintf("circular dependency involving %s (cycle: %v)", e.Package, e.Cycle)
}

// InvalidLanguageError is returned when a descriptor names an unrecognized
// language tag.
type InvalidLanguageError struct {
	Language string
}

func (e *InvalidLanguageError) Error() string {
	return fmt.Sprintf("invalid language tag: %q", e.Language)
}

// InvalidPackageNameError is returned when a package, dependency, or task
// name fails identifier validation.
type InvalidPackageNameError struct {
	Name   string
	Reason string
}

func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Name, e.Reason)
}

// TaskExecutionError carries context about a failed or malformed task
// invocation. A non-zero exit from the spawned command is NOT a
// TaskExecutionError; it is reflected in TaskResult.Success.
type TaskExecutionError struct {
	Package   string
	Task      string
	Message   string
	Available []string
}

func (e *TaskExecutionError) Error() string {
	if len(e.Available) > 0 {
		return fmt.Sprintf("task %s:%s: %s (available tasks: %v)", e.Package, e.Task, e.Message, e.Available)
	}
	return fmt.Sprintf("task %s:%s: %s", e.Package, e.Task, e.Message)
}

// AdapterError covers cache, artifact, storage, network, and verification
// failures from a named component.
type AdapterError struct {
	Component string
	Message   string
	Cause     error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// MutexLockError represents an internal-consistency failure, surfaced when
// shared in-process state cannot be acquired or is found inconsistent.
type MutexLockError struct {
	Context string
}

func (e *MutexLockError) Error() string {
	return fmt.Sprintf("internal consistency failure: %s", e.Context)
}

// Wrap attaches path/file context to an underlying I/O or parse error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}
