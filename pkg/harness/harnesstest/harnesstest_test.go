package harnesstest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/harness"
	"go.uber.org/zap"
)

// echoToolchain builds one <case>.xe per case and simulates it by printing the case name.
type echoToolchain struct {
	fs afero.Fs
}

func (e *echoToolchain) Run(_ context.Context, cmd *command.Command) (*command.Result, error) {
	switch cmd.Name {
	case "make":
		caseDir := filepath.Dir(cmd.Dir)
		p := filepath.Join(caseDir, "bin", filepath.Base(caseDir)+".xe")
		if err := e.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(e.fs, p, []byte("ELF"), 0o755); err != nil {
			return nil, err
		}
	case "xsim":
		return &command.Result{Stdout: filepath.Base(cmd.Dir) + "\n"}, nil
	}

	return &command.Result{}, nil
}

func TestRunTests(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for _, name := range []string{"one", "two"} {
		dir := filepath.Join("/tests", name)
		require.NoError(t, fs.MkdirAll(dir, 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name+".expect"), []byte(name+"\n"), 0o644))
	}

	r, err := harness.NewRunner(fs, &echoToolchain{fs: fs}, config.Default(), "linux", zap.NewNop().Sugar())
	require.NoError(t, err)

	results := RunTests(t, r, "/tests")

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Passed())
		assert.Len(t, res.Artifacts, 1)
	}
}
