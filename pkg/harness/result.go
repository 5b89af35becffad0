package harness

import (
	"fmt"
	"path/filepath"
	"time"
)

type FailureKind string

const (
	KindConfigure      FailureKind = "configure"
	KindBuild          FailureKind = "build"
	KindDiscover       FailureKind = "discover"
	KindSimulate       FailureKind = "simulate"
	KindMismatch       FailureKind = "mismatch"
	KindMissingFixture FailureKind = "missing-fixture"
	KindCleanup        FailureKind = "cleanup"
)

// Failure attributes an error to a case and, for simulation and verification, to one artifact.
type Failure struct {
	Kind     FailureKind
	Case     string
	Artifact string
	Err      error
}

func (f *Failure) Error() string {
	if f.Artifact != "" {
		return fmt.Sprintf("%s failure in case '%s', artifact '%s': %v", f.Kind, f.Case, f.Artifact, f.Err)
	}

	return fmt.Sprintf("%s failure in case '%s': %v", f.Kind, f.Case, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Case is a single test case directory.
type Case struct {
	Name     string
	Dir      string
	BuildDir string
	BinDir   string
}

// Artifact is an executable produced by the build, paired with its expectation file by base name.
type Artifact struct {
	Path       string
	ExpectPath string
}

func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

type ArtifactResult struct {
	Artifact Artifact
	Stdout   string
	Duration time.Duration
	Failure  *Failure
}

func (r *ArtifactResult) Passed() bool {
	return r.Failure == nil
}

type CaseResult struct {
	Case Case
	// Artifacts holds exactly one result per discovered artifact, in path order.
	Artifacts []*ArtifactResult
	// Failure is set when configure, build or artifact discovery failed.
	Failure        *Failure
	CleanupFailure *Failure
	Duration       time.Duration
}

// Passed reports whether the case and every one of its artifacts succeeded. A case without artifacts passes.
func (r *CaseResult) Passed() bool {
	return len(r.Failures()) == 0
}

func (r *CaseResult) Failures() []*Failure {
	var failures []*Failure
	if r.Failure != nil {
		failures = append(failures, r.Failure)
	}

	for _, a := range r.Artifacts {
		if a.Failure != nil {
			failures = append(failures, a.Failure)
		}
	}

	if r.CleanupFailure != nil {
		failures = append(failures, r.CleanupFailure)
	}

	return failures
}
