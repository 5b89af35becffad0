package e2e

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertByExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   *Task
		wantErr bool
	}{
		{"Matching Exit Codes", &Task{Actual: Output{0, "", ""}, Expected: Output{0, "", ""}}, false},
		{"Mismatched Exit Codes", &Task{Actual: Output{1, "", ""}, Expected: Output{0, "", ""}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := AssertByExitCode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("AssertByExitCode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssertByExitCode_IncludesStderr(t *testing.T) {
	t.Parallel()

	err := AssertByExitCode(&Task{Actual: Output{ExitCode: 2, Error: "trap: illegal instruction\n"}})
	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Actual)
	assert.Contains(t, err.Error(), "trap: illegal instruction")
}

func TestAssertByOutputString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expected string
		actual   string
		wantErr  bool
	}{
		{"Matching Output Strings", "OK\n", "OK\n", false},
		{"Mismatched Output Strings", "output1", "output2", true},
		{"Missing trailing newline", "OK\n", "OK", true},
		{"Extra trailing newline", "OK", "OK\n", true},
		{"Windows line endings are not normalized", "OK\n", "OK\r\n", true},
		{"Empty outputs match", "", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := AssertByOutputString(&Task{
				Actual:   Output{Output: tt.actual},
				Expected: Output{Output: tt.expected},
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("AssertByOutputString() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMismatchError_Message(t *testing.T) {
	t.Parallel()

	err := &MismatchError{Expected: "line1\nline2\nline3\n", Actual: "line1\nlineX\nline3\n"}
	msg := err.Error()

	assert.Contains(t, msg, "output mismatch at byte 10 (line 2)")
	assert.Contains(t, msg, `expected "2\nline3\n"`)
	assert.Contains(t, msg, `got "X\nline3\n"`)
	assert.Contains(t, msg, "--- expected")
	assert.Contains(t, msg, "+++ actual")
	assert.Contains(t, msg, "-line2")
	assert.Contains(t, msg, "+lineX")
}

func TestMismatchError_TruncatedOutput(t *testing.T) {
	t.Parallel()

	err := &MismatchError{Expected: "OK\n", Actual: "OK"}
	assert.Contains(t, err.Error(), `at byte 2 (line 1): expected "\n", got <end of output>`)
}
