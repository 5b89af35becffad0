package cmd

import (
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/harness"
	path2 "github.com/xmos/xetest/pkg/path"
	"go.uber.org/zap"
)

func CleanCmd(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:      "clean",
		Usage:     "remove the build and bin directories left behind in the test cases",
		ArgsUsage: "[path to the test root]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-file",
				EnvVars: []string{"XETEST_CONFIG_FILE"},
				Usage:   "the path to the config file, defaults to .xetest.yml in the test root",
			},
		},
		Action: func(c *cli.Context) error {
			root := rootFromArgs(c.Args().Get(0))

			cfg, err := config.LoadForRoot(fs, root, c.String("config-file"))
			if err != nil {
				errorPrinter.Printf("Failed to load the config: %v\n", err)
				return cli.Exit("", 1)
			}

			r := CleanCommand{fs: fs, logger: makeLogger(*isDebug), stdout: os.Stdout}
			if err := r.Run(root, cfg); err != nil {
				errorPrinter.Printf("Failed to clean the test cases: %v\n", err)
				return cli.Exit("", 1)
			}

			return nil
		},
	}
}

type CleanCommand struct {
	fs     afero.Fs
	logger *zap.SugaredLogger
	stdout io.Writer
}

func (r *CleanCommand) Run(root string, cfg *config.Config) error {
	runner, err := harness.NewRunner(r.fs, nil, cfg, runtime.GOOS, r.logger)
	if err != nil {
		return err
	}

	cases, err := runner.Discover(root)
	if err != nil {
		return err
	}

	var removed atomic.Int64
	p := pool.New().WithMaxGoroutines(8).WithErrors()
	for _, c := range cases {
		c := c
		p.Go(func() error {
			for _, dir := range []string{c.BuildDir, c.BinDir} {
				exists, err := afero.DirExists(r.fs, dir)
				if err != nil {
					return errors.Wrapf(err, "failed to check '%s'", dir)
				}
				if !exists {
					continue
				}

				r.logger.Debugf("removing '%s'", dir)
				if err := path2.RemoveDirs(r.fs, dir); err != nil {
					return err
				}
				removed.Add(1)
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return err
	}

	if removed.Load() == 0 {
		infoPrinter.Fprintln(r.stdout, "No leftover build directories found, nothing to clean up...")
		return nil
	}

	infoPrinter.Fprintf(r.stdout, "Successfully removed %d directories from %d test cases.\n", removed.Load(), len(cases))
	return nil
}
