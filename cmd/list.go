package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"
	"github.com/xmos/xetest/pkg/config"
	"github.com/xmos/xetest/pkg/harness"
	path2 "github.com/xmos/xetest/pkg/path"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func List(isDebug *bool) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list the discovered test cases and their expectation files",
		ArgsUsage: "[path to the test root]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-file",
				EnvVars: []string{"XETEST_CONFIG_FILE"},
				Usage:   "the path to the config file, defaults to .xetest.yml in the test root",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
				Value:   "plain",
			},
		},
		Action: func(c *cli.Context) error {
			root := rootFromArgs(c.Args().Get(0))
			output := c.String("output")

			cfg, err := config.LoadForRoot(fs, root, c.String("config-file"))
			if err != nil {
				printError(os.Stdout, err, output, "Failed to load the config")
				return cli.Exit("", 1)
			}

			l := &ListCommand{fs: fs, logger: makeLogger(*isDebug), stdout: os.Stdout}
			if err := l.Run(root, cfg, output); err != nil {
				printError(os.Stdout, err, output, "Failed to list the test cases")
				return cli.Exit("", 1)
			}

			return nil
		},
	}
}

type ListedCase struct {
	Name     string   `json:"name"`
	Dir      string   `json:"dir"`
	Fixtures []string `json:"fixtures"`
}

type ListCommand struct {
	fs     afero.Fs
	logger *zap.SugaredLogger
	stdout io.Writer
}

func (l *ListCommand) Run(root string, cfg *config.Config, output string) error {
	runner, err := harness.NewRunner(l.fs, nil, cfg, runtime.GOOS, l.logger)
	if err != nil {
		return err
	}

	cases, err := runner.Discover(root)
	if err != nil {
		return err
	}

	listed := make([]ListedCase, len(cases))
	var g errgroup.Group
	g.SetLimit(8)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			fixtures, err := afero.Glob(l.fs, filepath.Join(c.Dir, "*"+cfg.ExpectExtension))
			if err != nil {
				return errors.Wrapf(err, "failed to list the fixtures of '%s'", c.Name)
			}

			names := make([]string, 0, len(fixtures))
			for _, f := range fixtures {
				names = append(names, path2.TrimExtension(f))
			}

			listed[i] = ListedCase{Name: c.Name, Dir: c.Dir, Fixtures: names}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if output == "json" {
		js, err := json.Marshal(listed)
		if err != nil {
			return errors.Wrap(err, "failed to marshal the test cases")
		}
		fmt.Fprintln(l.stdout, string(js))
		return nil
	}

	tree := treeprint.NewWithRoot(color.New(color.Bold).Sprintf("%d test cases", len(listed)))
	for _, c := range listed {
		branch := tree.AddBranch(color.New(color.FgYellow).Sprint(c.Name))
		if len(c.Fixtures) == 0 {
			branch.AddNode(faint("no expectation files"))
			continue
		}
		for _, f := range c.Fixtures {
			branch.AddNode(f + cfg.ExpectExtension)
		}
	}

	fmt.Fprintln(l.stdout, tree.String())
	return nil
}
