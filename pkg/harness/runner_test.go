package harness

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/e2e"
	"go.uber.org/zap"
)

const testRoot = "/tests"

type invocation struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// fakeToolchain stands in for cmake, the build tool and xsim on top of an in-memory filesystem.
type fakeToolchain struct {
	fs afero.Fs

	mu    sync.Mutex
	calls []invocation

	configureExit map[string]int
	buildExit     map[string]int
	// artifacts maps a case name to the artifact paths the build writes, relative to the bin directory.
	artifacts map[string][]string
	// outputs and simExit are keyed by artifact file name.
	outputs map[string]string
	simExit map[string]int
}

func newFakeToolchain(fs afero.Fs) *fakeToolchain {
	return &fakeToolchain{
		fs:            fs,
		configureExit: map[string]int{},
		buildExit:     map[string]int{},
		artifacts:     map[string][]string{},
		outputs:       map[string]string{},
		simExit:       map[string]int{},
	}
}

func (f *fakeToolchain) Run(_ context.Context, cmd *command.Command) (*command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{Name: cmd.Name, Args: cmd.Args, Dir: cmd.Dir, Env: cmd.Env})
	f.mu.Unlock()

	exit := func(code int, stdout string) (*command.Result, error) {
		res := &command.Result{Stdout: stdout, ExitCode: code}
		if code != 0 {
			res.Stderr = "tool failed"
			return res, &command.ExitError{Command: cmd, Result: res}
		}
		return res, nil
	}

	switch cmd.Name {
	case "cmake":
		caseName := filepath.Base(cmd.Dir)
		if err := f.fs.MkdirAll(filepath.Join(cmd.Dir, "build", "CMakeFiles"), 0o755); err != nil {
			return nil, err
		}
		return exit(f.configureExit[caseName], "-- Configuring done\n")
	case "make", "ninja":
		caseDir := filepath.Dir(cmd.Dir)
		caseName := filepath.Base(caseDir)
		if code := f.buildExit[caseName]; code != 0 {
			return exit(code, "")
		}
		for _, rel := range f.artifacts[caseName] {
			p := filepath.Join(caseDir, "bin", rel)
			if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, err
			}
			if err := afero.WriteFile(f.fs, p, []byte("ELF"), 0o755); err != nil {
				return nil, err
			}
		}
		return exit(0, "[100%] Built target\n")
	case "xsim":
		name := filepath.Base(cmd.Args[0])
		return exit(f.simExit[name], f.outputs[name])
	default:
		return nil, &command.StartError{Command: cmd, Err: exec.ErrNotFound}
	}
}

func (f *fakeToolchain) callsTo(name string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []invocation
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func newTestRunner(t *testing.T, fs afero.Fs, tc *fakeToolchain, goos string) *Runner {
	t.Helper()
	r, err := NewRunner(fs, tc, config.Default(), goos, zap.NewNop().Sugar())
	require.NoError(t, err)
	return r
}

func assertCleanedUp(t *testing.T, fs afero.Fs, c Case) {
	t.Helper()
	for _, dir := range []string{c.BuildDir, c.BinDir} {
		exists, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.False(t, exists, "%s should have been removed", dir)
	}
}

func TestRunner_RunCase_Passes(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/CMakeLists.txt", "project(app)")
	writeFile(t, fs, "/tests/app/foo.expect", "OK\n")

	tc := newFakeToolchain(fs)
	tc.artifacts["app"] = []string{"foo.xe"}
	tc.outputs["foo.xe"] = "OK\n"

	r := newTestRunner(t, fs, tc, "linux")
	c := r.NewCase(testRoot, "app")
	res := r.RunCase(context.Background(), c)

	require.True(t, res.Passed(), "failures: %v", res.Failures())
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "foo.xe", res.Artifacts[0].Artifact.Name())
	assert.Equal(t, "/tests/app/foo.expect", res.Artifacts[0].Artifact.ExpectPath)
	assert.Equal(t, "OK\n", res.Artifacts[0].Stdout)

	assert.Equal(t, []invocation{{
		Name: "cmake",
		Args: []string{"-DCMAKE_TOOLCHAIN_FILE=../../xmos_cmake_toolchain/xs3a.cmake", "-B", "build", "."},
		Dir:  "/tests/app",
	}}, tc.callsTo("cmake"))
	assert.Equal(t, []invocation{{Name: "make", Dir: "/tests/app/build"}}, tc.callsTo("make"))
	assert.Equal(t, []invocation{{Name: "xsim", Args: []string{"/tests/app/bin/foo.xe"}, Dir: "/tests/app"}}, tc.callsTo("xsim"))

	assertCleanedUp(t, fs, c)
}

func TestRunner_RunCase_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		setup        func(fs afero.Fs, tc *fakeToolchain)
		wantCaseKind FailureKind
		wantArtifact map[string]FailureKind
		wantXsim     int
	}{
		{
			name: "output differs by a trailing newline",
			setup: func(fs afero.Fs, tc *fakeToolchain) {
				tc.outputs["foo.xe"] = "OK"
			},
			wantArtifact: map[string]FailureKind{"foo.xe": KindMismatch},
			wantXsim:     1,
		},
		{
			name: "simulator exits non-zero",
			setup: func(fs afero.Fs, tc *fakeToolchain) {
				tc.outputs["foo.xe"] = "OK\n"
				tc.simExit["foo.xe"] = 1
			},
			wantArtifact: map[string]FailureKind{"foo.xe": KindSimulate},
			wantXsim:     1,
		},
		{
			name: "expectation fixture is missing",
			setup: func(fs afero.Fs, tc *fakeToolchain) {
				_ = fs.Remove("/tests/app/foo.expect")
			},
			wantArtifact: map[string]FailureKind{"foo.xe": KindMissingFixture},
			wantXsim:     0,
		},
		{
			name: "configure fails",
			setup: func(fs afero.Fs, tc *fakeToolchain) {
				tc.configureExit["app"] = 1
			},
			wantCaseKind: KindConfigure,
		},
		{
			name: "build fails",
			setup: func(fs afero.Fs, tc *fakeToolchain) {
				tc.buildExit["app"] = 2
			},
			wantCaseKind: KindBuild,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/tests/app/CMakeLists.txt", "project(app)")
			writeFile(t, fs, "/tests/app/foo.expect", "OK\n")

			tc := newFakeToolchain(fs)
			tc.artifacts["app"] = []string{"foo.xe"}
			tt.setup(fs, tc)

			r := newTestRunner(t, fs, tc, "linux")
			c := r.NewCase(testRoot, "app")
			res := r.RunCase(context.Background(), c)

			require.False(t, res.Passed())
			assertCleanedUp(t, fs, c)
			assert.Len(t, tc.callsTo("xsim"), tt.wantXsim)

			if tt.wantCaseKind != "" {
				require.NotNil(t, res.Failure)
				assert.Equal(t, tt.wantCaseKind, res.Failure.Kind)
				assert.Equal(t, "app", res.Failure.Case)
				assert.Empty(t, res.Artifacts)

				var exitErr *command.ExitError
				assert.ErrorAs(t, res.Failure, &exitErr)
				return
			}

			require.Nil(t, res.Failure)
			require.Len(t, res.Artifacts, len(tt.wantArtifact))
			for _, a := range res.Artifacts {
				require.NotNil(t, a.Failure)
				assert.Equal(t, tt.wantArtifact[a.Artifact.Name()], a.Failure.Kind)
				assert.Equal(t, a.Artifact.Name(), a.Failure.Artifact)
				assert.Contains(t, a.Failure.Error(), "artifact 'foo.xe'")
			}
		})
	}
}

func TestRunner_RunCase_MismatchCarriesDiff(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/foo.expect", "hello\nworld\n")

	tc := newFakeToolchain(fs)
	tc.artifacts["app"] = []string{"foo.xe"}
	tc.outputs["foo.xe"] = "hello\nthere\n"

	r := newTestRunner(t, fs, tc, "linux")
	res := r.RunCase(context.Background(), r.NewCase(testRoot, "app"))

	require.Len(t, res.Artifacts, 1)
	failure := res.Artifacts[0].Failure
	require.NotNil(t, failure)

	var mismatch *e2e.MismatchError
	require.ErrorAs(t, failure, &mismatch)
	assert.Equal(t, "hello\nworld\n", mismatch.Expected)
	assert.Equal(t, "hello\nthere\n", mismatch.Actual)
	assert.Contains(t, failure.Error(), "-world")
	assert.Contains(t, failure.Error(), "+there")
}

func TestRunner_RunCase_OneResultPerArtifact(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/multi/a.expect", "A\n")
	writeFile(t, fs, "/tests/multi/b.expect", "B\n")

	tc := newFakeToolchain(fs)
	tc.artifacts["multi"] = []string{"a.xe", "tile/b.xe", "a.xe.map"}
	tc.outputs["a.xe"] = "A\n"
	tc.outputs["b.xe"] = "wrong\n"

	r := newTestRunner(t, fs, tc, "linux")
	c := r.NewCase(testRoot, "multi")
	res := r.RunCase(context.Background(), c)

	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "/tests/multi/bin/a.xe", res.Artifacts[0].Artifact.Path)
	assert.True(t, res.Artifacts[0].Passed())
	assert.Equal(t, "/tests/multi/bin/tile/b.xe", res.Artifacts[1].Artifact.Path)
	assert.Equal(t, "/tests/multi/b.expect", res.Artifacts[1].Artifact.ExpectPath)
	require.NotNil(t, res.Artifacts[1].Failure)
	assert.Equal(t, KindMismatch, res.Artifacts[1].Failure.Kind)

	assert.False(t, res.Passed())
	assert.Len(t, res.Failures(), 1)
	assertCleanedUp(t, fs, c)
}

func TestRunner_RunCase_NoArtifactsPasses(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/lib/CMakeLists.txt", "add_library(lib)")

	tc := newFakeToolchain(fs)
	r := newTestRunner(t, fs, tc, "linux")
	res := r.RunCase(context.Background(), r.NewCase(testRoot, "lib"))

	assert.True(t, res.Passed())
	assert.Empty(t, res.Artifacts)
	assert.Empty(t, tc.callsTo("xsim"))
}

func TestRunner_RunCase_StaleArtifactsAreRemovedFirst(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/bin/stale.xe", "old")
	writeFile(t, fs, "/tests/app/build/CMakeCache.txt", "old")

	tc := newFakeToolchain(fs)
	r := newTestRunner(t, fs, tc, "linux")
	res := r.RunCase(context.Background(), r.NewCase(testRoot, "app"))

	assert.True(t, res.Passed())
	assert.Empty(t, res.Artifacts)
}

func TestRunner_RunCase_IsIdempotent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/good.expect", "OK\n")
	writeFile(t, fs, "/tests/app/bad.expect", "OK\n")

	tc := newFakeToolchain(fs)
	tc.artifacts["app"] = []string{"good.xe", "bad.xe"}
	tc.outputs["good.xe"] = "OK\n"
	tc.outputs["bad.xe"] = "NOK\n"

	r := newTestRunner(t, fs, tc, "linux")
	c := r.NewCase(testRoot, "app")

	summarize := func(res *CaseResult) map[string]FailureKind {
		out := map[string]FailureKind{}
		for _, a := range res.Artifacts {
			kind := FailureKind("")
			if a.Failure != nil {
				kind = a.Failure.Kind
			}
			out[a.Artifact.Name()] = kind
		}
		return out
	}

	first := r.RunCase(context.Background(), c)
	assertCleanedUp(t, fs, c)
	second := r.RunCase(context.Background(), c)
	assertCleanedUp(t, fs, c)

	assert.Equal(t, summarize(first), summarize(second))
	assert.Equal(t, map[string]FailureKind{"good.xe": "", "bad.xe": KindMismatch}, summarize(first))
}

func TestRunner_BuildToolPerPlatform(t *testing.T) {
	t.Parallel()

	for goos, tool := range map[string]string{"windows": "ninja", "linux": "make", "darwin": "make"} {
		goos, tool := goos, tool
		t.Run(goos, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			tc := newFakeToolchain(fs)
			r := newTestRunner(t, fs, tc, goos)
			assert.Equal(t, tool, r.BuildTool())

			r.RunCase(context.Background(), r.NewCase(testRoot, "app"))
			assert.Len(t, tc.callsTo(tool), 1)
		})
	}
}

func TestRunner_MissingToolIsConfigureFailure(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.ConfigureTool = "cmake-missing"

	r, err := NewRunner(fs, newFakeToolchain(fs), cfg, "linux", zap.NewNop().Sugar())
	require.NoError(t, err)

	res := r.RunCase(context.Background(), r.NewCase(testRoot, "app"))
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindConfigure, res.Failure.Kind)

	var startErr *command.StartError
	assert.ErrorAs(t, res.Failure, &startErr)
}

func TestRunner_Discover(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/test_cmake.py", "")
	writeFile(t, fs, "/tests/.xetest.yml", "")
	writeFile(t, fs, "/tests/app_b/CMakeLists.txt", "")
	writeFile(t, fs, "/tests/app_a/CMakeLists.txt", "")
	writeFile(t, fs, "/tests/.pytest_cache/README.md", "")
	writeFile(t, fs, "/tests/__pycache__/x.pyc", "")
	writeFile(t, fs, "/tests/.git/HEAD", "")

	cfg := config.Default()
	cfg.Exclude = []string{".git"}
	r, err := NewRunner(fs, newFakeToolchain(fs), cfg, "linux", zap.NewNop().Sugar())
	require.NoError(t, err)

	cases, err := r.Discover(testRoot)
	require.NoError(t, err)
	assert.Equal(t, []Case{
		{Name: "app_a", Dir: "/tests/app_a", BuildDir: "/tests/app_a/build", BinDir: "/tests/app_a/bin"},
		{Name: "app_b", Dir: "/tests/app_b", BuildDir: "/tests/app_b/build", BinDir: "/tests/app_b/bin"},
	}, cases)

	_, err = r.Discover("/does-not-exist")
	require.Error(t, err)
}

func TestNewRunner_UnknownPlatform(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.BuildTools = map[string]string{"windows": "ninja"}
	_, err := NewRunner(afero.NewMemMapFs(), nil, cfg, "linux", zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestNewRunner_RejectsOutputDirsOutsideTheCase(t *testing.T) {
	t.Parallel()

	for _, dirs := range [][2]string{{".", "bin"}, {"build", ".."}, {"/tmp/build", "bin"}} {
		cfg := config.Default()
		cfg.BuildDir, cfg.BinDir = dirs[0], dirs[1]
		_, err := NewRunner(afero.NewMemMapFs(), newFakeToolchain(afero.NewMemMapFs()), cfg, "linux", zap.NewNop().Sugar())
		require.Error(t, err, "build_dir=%q bin_dir=%q", dirs[0], dirs[1])
	}
}

func TestRunner_PassesConfiguredEnvToEveryTool(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/foo.expect", "OK\n")
	tc := newFakeToolchain(fs)
	tc.artifacts["app"] = []string{"foo.xe"}
	tc.outputs["foo.xe"] = "OK\n"

	cfg := config.Default()
	cfg.Env = map[string]string{"XMOS_TOOL_PATH": "/opt/xmos"}
	r, err := NewRunner(fs, tc, cfg, "linux", zap.NewNop().Sugar())
	require.NoError(t, err)

	res := r.RunCase(context.Background(), r.NewCase(testRoot, "app"))
	require.True(t, res.Passed())

	for _, tool := range []string{"cmake", "make", "xsim"} {
		calls := tc.callsTo(tool)
		require.Len(t, calls, 1, tool)
		assert.Equal(t, []string{"XMOS_TOOL_PATH=/opt/xmos"}, calls[0].Env, tool)
	}
}

func TestRunner_RunCase_KeepsFixturesInTheCaseDir(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/tests/app/foo.expect", "OK\n")
	writeFile(t, fs, "/tests/app/CMakeLists.txt", "project(app)\n")
	tc := newFakeToolchain(fs)
	tc.artifacts["app"] = []string{"foo.xe"}
	tc.outputs["foo.xe"] = "OK\n"

	r := newTestRunner(t, fs, tc, "linux")
	res := r.RunCase(context.Background(), r.NewCase(testRoot, "app"))
	require.True(t, res.Passed())

	for _, p := range []string{"/tests/app/foo.expect", "/tests/app/CMakeLists.txt"} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, exists, p)
	}
}
