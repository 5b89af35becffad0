package e2e

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ExitCodeError reports a process that finished with an unexpected exit code.
type ExitCodeError struct {
	Expected int
	Actual   int
	Stderr   string
}

func (e *ExitCodeError) Error() string {
	msg := fmt.Sprintf("exit code mismatch: expected %d, got %d", e.Expected, e.Actual)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nstderr:\n" + s
	}

	return msg
}

// MismatchError reports output that is not byte-for-byte equal to the expectation.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	offset, line := firstDifference(e.Expected, e.Actual)
	return fmt.Sprintf("output mismatch at byte %d (line %d): expected %s, got %s\n%s",
		offset, line, excerpt(e.Expected, offset), excerpt(e.Actual, offset), e.Diff())
}

// Diff renders a unified diff between the expected and the actual output.
func (e *MismatchError) Diff() string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(e.Expected),
		B:        difflib.SplitLines(e.Actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("failed to render the diff: %v", err)
	}

	return diff
}

func AssertByExitCode(i *Task) error {
	if i.Actual.ExitCode != i.Expected.ExitCode {
		return &ExitCodeError{Expected: i.Expected.ExitCode, Actual: i.Actual.ExitCode, Stderr: i.Actual.Error}
	}
	return nil
}

// AssertByOutputString compares the captured stdout with the expectation without any normalization.
func AssertByOutputString(i *Task) error {
	if i.Actual.Output != i.Expected.Output {
		return &MismatchError{Expected: i.Expected.Output, Actual: i.Actual.Output}
	}
	return nil
}

// firstDifference returns the byte offset and the 1-based line number where a and b start to differ.
func firstDifference(a, b string) (int, int) {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}

	return i, strings.Count(a[:i], "\n") + 1
}

func excerpt(s string, offset int) string {
	const width = 20
	if offset >= len(s) {
		return "<end of output>"
	}

	end := min(offset+width, len(s))
	return fmt.Sprintf("%q", s[offset:end])
}
