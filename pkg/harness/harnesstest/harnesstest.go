// Package harnesstest runs xetest cases from `go test`, one subtest per case and per artifact.
package harnesstest

import (
	"context"
	"testing"

	"github.com/xmos/xetest/pkg/harness"
)

// RunTests runs every case under root as a subtest of t, with one nested subtest per artifact.
// Cases run sequentially; a failing case does not stop the others.
func RunTests(t *testing.T, r *harness.Runner, root string) []*harness.CaseResult {
	t.Helper()

	cases, err := r.Discover(root)
	if err != nil {
		t.Fatalf("failed to discover test cases under '%s': %v", root, err)
	}

	results := make([]*harness.CaseResult, 0, len(cases))
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			res := r.RunCase(context.Background(), c)
			results = append(results, res)

			if res.Failure != nil {
				t.Error(res.Failure)
			}

			for _, a := range res.Artifacts {
				t.Run(a.Artifact.Name(), func(t *testing.T) {
					if a.Failure != nil {
						t.Error(a.Failure)
					}
				})
			}

			if res.CleanupFailure != nil {
				t.Error(res.CleanupFailure)
			}
		})
	}

	return results
}
