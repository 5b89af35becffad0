package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/xmos/xetest/pkg/logger"
)

// DefaultWaitDelay bounds how long Run waits for the output streams once the process is gone.
const DefaultWaitDelay = 2 * time.Second

// ExecRunner runs commands as real child processes. Each child gets its own process group, so
// cancelling a command also stops whatever the tool spawned.
type ExecRunner struct {
	// Timeout bounds every single command. Zero means no limit.
	Timeout time.Duration
	// WaitDelay overrides DefaultWaitDelay when set.
	WaitDelay time.Duration
	Logger    logger.Logger
}

func (r *ExecRunner) Run(ctx context.Context, command *Command) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command.Name, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	cmd.Env = append(os.Environ(), command.Env...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	killProcessGroupOnCancel(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var echoes []*lineEchoWriter
	if w, ok := ctx.Value(KeyPrinter).(io.Writer); ok {
		output := &lockedWriter{w: w}
		stdoutEcho := &lineEchoWriter{w: output}
		stderrEcho := &lineEchoWriter{w: output}
		echoes = append(echoes, stdoutEcho, stderrEcho)
		cmd.Stdout = io.MultiWriter(&stdout, stdoutEcho)
		cmd.Stderr = io.MultiWriter(&stderr, stderrEcho)
	}

	if r.Logger != nil {
		r.Logger.Debugf("running '%s' in '%s'", command, command.Dir)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &StartError{Command: command, Err: err}
	}

	// Wait owns the copying of both streams and gives up on them WaitDelay after the process is gone.
	waitErr := cmd.Wait()
	for _, e := range echoes {
		e.Flush()
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: GetExitCode(waitErr),
		Duration: time.Since(start),
	}

	if r.Logger != nil {
		r.Logger.Debugw("command finished", "command", command.Name, "exit_code", res.ExitCode, "duration", res.Duration)
	}

	if waitErr == nil {
		return res, nil
	}

	if r.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, &TimeoutError{Command: command, Timeout: r.Timeout, Result: res}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return res, &ExitError{Command: command, Result: res}
	}

	return res, waitErr
}

// GetExitCode extracts the process exit code from the error returned by exec.Cmd.Wait.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

// lineEchoWriter prefixes every complete line with ">> " before passing it on. A trailing partial
// line is held back until Flush.
type lineEchoWriter struct {
	w       io.Writer
	pending []byte
}

func (l *lineEchoWriter) Write(p []byte) (int, error) {
	l.pending = append(l.pending, p...)
	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}
		l.emit(l.pending[:idx])
		l.pending = l.pending[idx+1:]
	}

	// echo write errors are ignored, the capture buffers already hold the data
	return len(p), nil
}

func (l *lineEchoWriter) Flush() {
	if len(l.pending) > 0 {
		l.emit(l.pending)
		l.pending = nil
	}
}

func (l *lineEchoWriter) emit(line []byte) {
	msg := make([]byte, 0, len(line)+4)
	msg = append(msg, ">> "...)
	msg = append(msg, line...)
	msg = append(msg, '\n')
	_, _ = l.w.Write(msg)
}

// lockedWriter serializes the stdout and stderr echoes onto one writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
