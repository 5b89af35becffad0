package e2e

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/logger"
)

// Task runs a single command and checks its outcome with the given asserts.
type Task struct {
	Name     string
	Command  *command.Command
	Expected Output
	Actual   Output
	Asserts  []func(*Task) error
}

type Output struct {
	ExitCode int
	Output   string
	Error    string
}

// Run executes the command and applies the asserts in order, returning the first failure.
// A non-zero exit is recorded in Actual and left to the asserts; failing to run the command at all is returned as is.
func (s *Task) Run(ctx context.Context, runner command.Runner, log logger.Logger) error {
	if s.Name == "" {
		s.Name = s.Command.String()
	}
	log.Debugf("Running task: %s", s.Name)

	res, err := runner.Run(ctx, s.Command)
	if err != nil {
		var exitErr *command.ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
		if res == nil {
			res = exitErr.Result
		}
	}

	if res != nil {
		s.Actual.ExitCode = res.ExitCode
		s.Actual.Output = res.Stdout
		s.Actual.Error = res.Stderr
	}

	for _, assert := range s.Asserts {
		if err := assert(s); err != nil {
			log.Debugf("Assertion failed for task %s: %v", s.Name, err)
			return fmt.Errorf("assertion failed for task %s: %w", s.Name, err)
		}
	}

	return nil
}
