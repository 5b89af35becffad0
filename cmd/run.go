package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/executor"
	"github.com/xmos/xetest/pkg/harness"
	"github.com/xmos/xetest/pkg/report"
	"go.uber.org/zap"
)

func Run(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "configure, build and simulate every test case, then compare the output with the expectation files",
		ArgsUsage: "[path to the test root]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-file",
				EnvVars: []string{"XETEST_CONFIG_FILE"},
				Usage:   "the path to the config file, defaults to .xetest.yml in the test root",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of test cases to run in parallel",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout for every single cmake, build tool and simulator invocation, 0 disables it",
			},
			&cli.StringSliceFlag{
				Name:    "case",
				Aliases: []string{"c"},
				Usage:   "run only the test cases with the given names",
			},
			&cli.StringFlag{
				Name:  "toolchain",
				Usage: "the toolchain file passed to cmake, relative to each test case directory",
			},
			&cli.StringFlag{
				Name:  "build-tool",
				Usage: "the build tool to run in the build directory, overrides the per-platform default",
			},
			&cli.StringFlag{
				Name:  "simulator",
				Usage: "the simulator used to run the produced binaries",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "do not echo the output of the external tools",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
				Value:   "plain",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			root := rootFromArgs(c.Args().Get(0))
			output := c.String("output")
			logger := makeLogger(*isDebug)

			cfg, err := config.LoadForRoot(fs, root, c.String("config-file"))
			if err != nil {
				printError(os.Stdout, err, output, "Failed to load the config")
				return cli.Exit("", 1)
			}

			if c.IsSet("workers") {
				cfg.Workers = c.Int("workers")
			}
			if c.IsSet("timeout") {
				cfg.Timeout = c.Duration("timeout")
			}
			if c.IsSet("toolchain") {
				cfg.ToolchainFile = c.String("toolchain")
			}
			if c.IsSet("simulator") {
				cfg.Simulator = c.String("simulator")
			}
			if c.IsSet("build-tool") {
				cfg.BuildTools = map[string]string{config.DefaultBuildToolKey: c.String("build-tool")}
			}
			if err := cfg.Validate(); err != nil {
				printError(os.Stdout, err, output, "Invalid configuration")
				return cli.Exit("", 1)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			r := &RunCommand{
				fs:       fs,
				commands: &command.ExecRunner{Timeout: cfg.Timeout, Logger: logger},
				goos:     runtime.GOOS,
				logger:   logger,
				stdout:   os.Stdout,
				stderr:   os.Stderr,
			}

			return r.Run(ctx, root, cfg, RunOptions{
				Cases:  c.StringSlice("case"),
				Output: output,
				Quiet:  c.Bool("quiet"),
			})
		},
	}
}

type RunOptions struct {
	Cases  []string
	Output string
	Quiet  bool
}

type RunCommand struct {
	fs       afero.Fs
	commands command.Runner
	goos     string
	logger   *zap.SugaredLogger
	stdout   io.Writer
	stderr   io.Writer
}

func (r *RunCommand) Run(ctx context.Context, root string, cfg *config.Config, opts RunOptions) error {
	runner, err := harness.NewRunner(r.fs, r.commands, cfg, r.goos, r.logger)
	if err != nil {
		printError(r.stdout, err, opts.Output, "Failed to resolve the build tool")
		return cli.Exit("", 1)
	}

	cases, err := runner.Discover(root)
	if err != nil {
		printError(r.stdout, err, opts.Output, "Failed to discover the test cases")
		return cli.Exit("", 1)
	}

	cases, err = filterCases(cases, opts.Cases)
	if err != nil {
		printError(r.stdout, err, opts.Output, "Failed to select the test cases")
		return cli.Exit("", 1)
	}

	// keep stdout machine-readable in json mode
	progress := r.stdout
	if opts.Output == "json" {
		progress = r.stderr
	}

	if opts.Output != "json" && len(cases) == 0 {
		warningPrinter.Fprintf(progress, "No test cases found under '%s'\n", root)
	}

	if opts.Output != "json" {
		infoPrinter.Fprintf(progress, "Running %d test cases with %d workers, build tool '%s'\n", len(cases), cfg.Workers, runner.BuildTool())
	}

	start := time.Now()
	ex := executor.NewConcurrent(r.logger, runner, executor.Options{
		WorkerCount: cfg.Workers,
		Output:      progress,
		Quiet:       opts.Quiet,
	})
	results := ex.RunCases(ctx, cases)
	duration := time.Since(start)

	summary := report.Summarize(results)
	if opts.Output == "json" {
		if err := report.NewReport(root, results).WriteJSON(r.stdout); err != nil {
			return errors.Wrap(err, "failed to write the report")
		}
	} else {
		fmt.Fprintln(r.stdout)
		report.PrintTable(r.stdout, results)
		if tree := report.FailureTree(results); tree != "" {
			fmt.Fprintln(r.stdout)
			fmt.Fprintln(r.stdout, tree)
		}

		durationString := faint(fmt.Sprintf("(%s)", duration.Truncate(time.Millisecond)))
		if summary.FailedCases == 0 {
			successPrinter.Fprintf(r.stdout, "\nAll %d test cases passed with %d artifacts %s\n", summary.Cases, summary.Artifacts, durationString)
		} else {
			errorPrinter.Fprintf(r.stdout, "\n%d of %d test cases failed %s\n", summary.FailedCases, summary.Cases, durationString)
		}
	}

	if summary.FailedCases > 0 {
		return cli.Exit("", 1)
	}

	return nil
}

func filterCases(cases []harness.Case, names []string) ([]harness.Case, error) {
	if len(names) == 0 {
		return cases, nil
	}

	known := lo.Map(cases, func(c harness.Case, _ int) string { return c.Name })
	if unknown := lo.Filter(names, func(n string, _ int) bool { return !slices.Contains(known, n) }); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown test cases: %v", unknown)
	}

	return lo.Filter(cases, func(c harness.Case, _ int) bool {
		return slices.Contains(names, c.Name)
	}), nil
}
