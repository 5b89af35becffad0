package executor

import (
	"context"

	"github.com/xmos/xetest/pkg/harness"
)

type CaseRunner interface {
	RunCase(ctx context.Context, c harness.Case) *harness.CaseResult
}

type Sequential struct {
	Runner CaseRunner
}

// RunSingleCase runs one case. Failures are reported through the result.
func (s Sequential) RunSingleCase(ctx context.Context, c harness.Case) *harness.CaseResult {
	return s.Runner.RunCase(ctx, c)
}

// RunCases runs the cases one after another, returning results in input order.
func (s Sequential) RunCases(ctx context.Context, cases []harness.Case) []*harness.CaseResult {
	results := make([]*harness.CaseResult, 0, len(cases))
	for _, c := range cases {
		results = append(results, s.RunSingleCase(ctx, c))
	}

	return results
}
