package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/xlab/treeprint"
	"github.com/xmos/xetest/pkg/harness"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

type Summary struct {
	Cases           int `json:"cases"`
	FailedCases     int `json:"failed_cases"`
	Artifacts       int `json:"artifacts"`
	FailedArtifacts int `json:"failed_artifacts"`
}

func Summarize(results []*harness.CaseResult) Summary {
	s := Summary{Cases: len(results)}
	for _, res := range results {
		if !res.Passed() {
			s.FailedCases++
		}

		s.Artifacts += len(res.Artifacts)
		s.FailedArtifacts += lo.CountBy(res.Artifacts, func(a *harness.ArtifactResult) bool {
			return !a.Passed()
		})
	}

	return s
}

func status(passed bool) string {
	if passed {
		return StatusPassed
	}
	return StatusFailed
}

// PrintTable writes one row per case with its artifact counts and status.
func PrintTable(w io.Writer, results []*harness.CaseResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Case", "Artifacts", "Failed", "Status", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Artifacts", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, res := range results {
		failed := lo.CountBy(res.Artifacts, func(a *harness.ArtifactResult) bool { return !a.Passed() })

		st := color.New(color.FgGreen).Sprint(status(true))
		if !res.Passed() {
			st = color.New(color.FgRed).Sprint(status(false))
			if res.Failure != nil {
				st += " (" + string(res.Failure.Kind) + ")"
			}
		}

		t.AppendRow(table.Row{res.Case.Name, len(res.Artifacts), failed, st, res.Duration.Truncate(time.Millisecond).String()})
	}

	s := Summarize(results)
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d cases", s.Cases),
		s.Artifacts,
		s.FailedArtifacts,
		fmt.Sprintf("%d failed", s.FailedCases),
		"",
	})
	t.Render()
}

// FailureTree renders every failure grouped by case and artifact. It returns an empty string when everything passed.
func FailureTree(results []*harness.CaseResult) string {
	failed := lo.Filter(results, func(res *harness.CaseResult, _ int) bool { return !res.Passed() })
	if len(failed) == 0 {
		return ""
	}

	tree := treeprint.NewWithRoot(color.New(color.FgRed).Sprintf("%d cases failed", len(failed)))
	for _, res := range failed {
		caseBranch := tree.AddBranch(color.New(color.FgYellow).Sprint(res.Case.Name))

		for _, f := range res.Failures() {
			label := color.New(color.FgMagenta).Sprint(string(f.Kind))
			if f.Artifact != "" {
				label = color.New(color.FgCyan).Sprint(f.Artifact) + " " + label
			}

			caseBranch.AddNode(fmt.Sprintf("%s - %s", label, color.New(color.FgRed).Sprint(f.Err.Error())))
		}
	}

	return tree.String()
}

type ArtifactReport struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	ExpectPath string `json:"expect_path"`
	Status     string `json:"status"`
	Kind       string `json:"failure_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type CaseReport struct {
	Name       string           `json:"name"`
	Dir        string           `json:"dir"`
	Status     string           `json:"status"`
	Kind       string           `json:"failure_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	CleanupErr string           `json:"cleanup_error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	Artifacts  []ArtifactReport `json:"artifacts"`
}

type Report struct {
	RunID   string       `json:"run_id"`
	Root    string       `json:"root"`
	Summary Summary      `json:"summary"`
	Cases   []CaseReport `json:"cases"`
}

func NewReport(root string, results []*harness.CaseResult) *Report {
	r := &Report{
		RunID:   uuid.New().String(),
		Root:    root,
		Summary: Summarize(results),
		Cases:   make([]CaseReport, 0, len(results)),
	}

	for _, res := range results {
		cr := CaseReport{
			Name:       res.Case.Name,
			Dir:        res.Case.Dir,
			Status:     status(res.Passed()),
			DurationMs: res.Duration.Milliseconds(),
			Artifacts:  make([]ArtifactReport, 0, len(res.Artifacts)),
		}
		if res.Failure != nil {
			cr.Kind = string(res.Failure.Kind)
			cr.Error = res.Failure.Err.Error()
		}
		if res.CleanupFailure != nil {
			cr.CleanupErr = res.CleanupFailure.Err.Error()
		}

		for _, a := range res.Artifacts {
			ar := ArtifactReport{
				Name:       a.Artifact.Name(),
				Path:       a.Artifact.Path,
				ExpectPath: a.Artifact.ExpectPath,
				Status:     status(a.Passed()),
				DurationMs: a.Duration.Milliseconds(),
			}
			if a.Failure != nil {
				ar.Kind = string(a.Failure.Kind)
				ar.Error = a.Failure.Err.Error()
			}
			cr.Artifacts = append(cr.Artifacts, ar)
		}

		r.Cases = append(r.Cases, cr)
	}

	return r
}

func (r *Report) WriteJSON(w io.Writer) error {
	js, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal the report")
	}

	_, err = fmt.Fprintln(w, strings.TrimSpace(string(js)))
	return err
}
