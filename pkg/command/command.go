package command

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type contextKey int

// KeyPrinter holds an io.Writer in the context. When present, command output is echoed to it line by line.
const KeyPrinter contextKey = iota

// Command is a single external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the current process environment.
	Env []string
}

func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}

	return strings.Join(parts, " ")
}

// Result is what a finished process left behind. Stdout and Stderr are captured separately and verbatim.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

type Runner interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
}

// ExitError is returned when a process ran to completion with a non-zero exit code.
type ExitError struct {
	Command *Command
	Result  *Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command '%s' in '%s' exited with code %d", e.Command, e.Command.Dir, e.Result.ExitCode)
	if tail := lastLines(e.Result.Stderr, 5); tail != "" {
		msg += ": " + tail
	}

	return msg
}

// StartError is returned when the process could not be started at all, typically a tool missing from PATH.
type StartError struct {
	Command *Command
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start '%s' in '%s': %v", e.Command.Name, e.Command.Dir, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

type TimeoutError struct {
	Command *Command
	Timeout time.Duration
	Result  *Result
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command '%s' in '%s' timed out after %s", e.Command, e.Command.Dir, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
