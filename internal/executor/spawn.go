package executor

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"polykit/internal/polyerr"
)

// LineSink receives one streamed output line as it is produced. Sinks must
// be safe for concurrent use: multiple tasks running in parallel levels
// share the scheduler's single sink (spec.md §5).
type LineSink func(packageName, line string, isStderr bool)

// spawnResult is the accumulated outcome of a single-shot command run.
type spawnResult struct {
	Success bool
	Stdout  string
	Stderr  string
}

// spawn runs command in dir via a shell, streaming stdout/stderr line by
// line to sink (if non-nil) while also accumulating the full text for the
// final result. It is adapted from the single-shot portion of a
// supervise-and-restart child-process wrapper, trimmed down since task
// commands are run-to-completion, never restarted.
func spawn(ctx context.Context, dir, packageName, command string, sink LineSink) (spawnResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return spawnResult{}, polyerr.Wrap(err, "opening stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return spawnResult{}, polyerr.Wrap(err, "opening stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return spawnResult{}, polyerr.Wrap(err, "starting command")
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go drainLines(&wg, stdoutPipe, &stdoutBuf, packageName, false, sink)
	go drainLines(&wg, stderrPipe, &stderrBuf, packageName, true, sink)
	wg.Wait()

	waitErr := cmd.Wait()
	return spawnResult{
		Success: waitErr == nil,
		Stdout:  stdoutBuf.String(),
		Stderr:  stderrBuf.String(),
	}, nil
}

// drainLines reads r line by line, appending every line (with its newline)
// to acc and, when sink is set, invoking it as each line arrives.
func drainLines(wg *sync.WaitGroup, r io.Reader, acc *strings.Builder, packageName string, isStderr bool, sink LineSink) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		acc.WriteString(line)
		acc.WriteByte('\n')
		if sink != nil {
			sink(packageName, line, isStderr)
		}
	}
}
