package harness

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/e2e"
	"github.com/xmos/xetest/pkg/logger"
	path2 "github.com/xmos/xetest/pkg/path"
)

// Runner configures, builds, simulates and verifies test cases.
type Runner struct {
	fs        afero.Fs
	commands  command.Runner
	config    *config.Config
	buildTool string
	logger    logger.Logger
}

// NewRunner validates cfg and resolves the build tool for goos once, so every case of a run uses the same one.
func NewRunner(fs afero.Fs, commands command.Runner, cfg *config.Config, goos string, log logger.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	buildTool, err := cfg.BuildTool(goos)
	if err != nil {
		return nil, err
	}

	return &Runner{
		fs:        fs,
		commands:  commands,
		config:    cfg,
		buildTool: buildTool,
		logger:    log,
	}, nil
}

// BuildTool returns the build tool resolved for the runner's platform.
func (r *Runner) BuildTool() string {
	return r.buildTool
}

// Discover lists the test cases under root: every immediate subdirectory that is not excluded.
func (r *Runner) Discover(root string) ([]Case, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	names, err := path2.ListSubdirectories(r.fs, absRoot, r.config.ExcludedNames())
	if err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(names))
	for _, name := range names {
		cases = append(cases, r.NewCase(absRoot, name))
	}

	r.logger.Debugf("discovered %d test cases under '%s'", len(cases), absRoot)
	return cases, nil
}

// NewCase describes the case directory name under root along with its build and bin directories.
func (r *Runner) NewCase(root, name string) Case {
	dir := filepath.Join(root, name)
	return Case{
		Name:     name,
		Dir:      dir,
		BuildDir: filepath.Join(dir, r.config.BuildDir),
		BinDir:   filepath.Join(dir, r.config.BinDir),
	}
}

// RunCase runs the full protocol for one case. The build and bin directories are removed
// before returning, whether the case passed or not.
func (r *Runner) RunCase(ctx context.Context, c Case) (result *CaseResult) {
	start := time.Now()
	result = &CaseResult{Case: c}

	defer func() {
		if err := path2.RemoveDirs(r.fs, c.BuildDir, c.BinDir); err != nil {
			result.CleanupFailure = &Failure{Kind: KindCleanup, Case: c.Name, Err: err}
		}
		result.Duration = time.Since(start)
	}()

	// leftovers of an interrupted run would otherwise leak stale artifacts into this one
	if err := path2.RemoveDirs(r.fs, c.BuildDir, c.BinDir); err != nil {
		result.Failure = &Failure{Kind: KindCleanup, Case: c.Name, Err: err}
		return result
	}

	if err := r.configure(ctx, c); err != nil {
		result.Failure = &Failure{Kind: KindConfigure, Case: c.Name, Err: err}
		return result
	}

	if err := r.build(ctx, c); err != nil {
		result.Failure = &Failure{Kind: KindBuild, Case: c.Name, Err: err}
		return result
	}

	artifacts, err := r.FindArtifacts(c)
	if err != nil {
		result.Failure = &Failure{Kind: KindDiscover, Case: c.Name, Err: err}
		return result
	}

	r.logger.Debugf("case '%s' produced %d artifacts", c.Name, len(artifacts))
	for _, a := range artifacts {
		result.Artifacts = append(result.Artifacts, r.runArtifact(ctx, c, a))
	}

	return result
}

func (r *Runner) configure(ctx context.Context, c Case) error {
	_, err := r.commands.Run(ctx, &command.Command{
		Name: r.config.ConfigureTool,
		Args: []string{"-DCMAKE_TOOLCHAIN_FILE=" + r.config.ToolchainFile, "-B", r.config.BuildDir, "."},
		Dir:  c.Dir,
		Env:  r.config.Environ(),
	})
	return err
}

func (r *Runner) build(ctx context.Context, c Case) error {
	_, err := r.commands.Run(ctx, &command.Command{
		Name: r.buildTool,
		Dir:  c.BuildDir,
		Env:  r.config.Environ(),
	})
	return err
}

// FindArtifacts returns the artifacts under the case's bin directory sorted by path. A missing bin directory means none.
func (r *Runner) FindArtifacts(c Case) ([]Artifact, error) {
	exists, err := afero.DirExists(r.fs, c.BinDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	paths, err := path2.GetAllFilesRecursive(r.fs, c.BinDir, []string{r.config.ArtifactExtension})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	artifacts := make([]Artifact, 0, len(paths))
	for _, p := range paths {
		artifacts = append(artifacts, Artifact{
			Path:       p,
			ExpectPath: filepath.Join(c.Dir, path2.TrimExtension(p)+r.config.ExpectExtension),
		})
	}

	return artifacts, nil
}

func (r *Runner) runArtifact(ctx context.Context, c Case, a Artifact) *ArtifactResult {
	result := &ArtifactResult{Artifact: a}
	fail := func(kind FailureKind, err error) *ArtifactResult {
		result.Failure = &Failure{Kind: kind, Case: c.Name, Artifact: a.Name(), Err: err}
		return result
	}

	expected, err := e2e.ReadExpectation(r.fs, a.ExpectPath)
	if err != nil {
		var missing *e2e.MissingFixtureError
		if errors.As(err, &missing) {
			return fail(KindMissingFixture, err)
		}
		return fail(KindDiscover, err)
	}

	task := &e2e.Task{
		Name: c.Name + "/" + a.Name(),
		Command: &command.Command{
			Name: r.config.Simulator,
			Args: []string{a.Path},
			Dir:  c.Dir,
			Env:  r.config.Environ(),
		},
		Expected: e2e.Output{ExitCode: 0, Output: expected},
		Asserts:  []func(*e2e.Task) error{e2e.AssertByExitCode, e2e.AssertByOutputString},
	}

	start := time.Now()
	err = task.Run(ctx, r.commands, r.logger)
	result.Duration = time.Since(start)
	result.Stdout = task.Actual.Output
	if err == nil {
		return result
	}

	var mismatch *e2e.MismatchError
	if errors.As(err, &mismatch) {
		return fail(KindMismatch, mismatch)
	}

	return fail(KindSimulate, err)
}
