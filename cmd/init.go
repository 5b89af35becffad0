package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"github.com/xmos/xetest/pkg/config"
	path2 "github.com/xmos/xetest/pkg/path"
)

func Init() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "write a config file with the default settings into the test root",
		ArgsUsage: "[path to the test root]",
		Action: func(c *cli.Context) error {
			root := rootFromArgs(c.Args().Get(0))

			r := InitCommand{fs: fs, stdout: os.Stdout}
			if err := r.Run(root); err != nil {
				errorPrinter.Printf("Failed to create the config file: %v\n", err)
				return cli.Exit("", 1)
			}

			return nil
		},
	}
}

type InitCommand struct {
	fs     afero.Fs
	stdout io.Writer
}

func (r *InitCommand) Run(root string) error {
	target := filepath.Join(root, config.DefaultFileName)

	exists, err := afero.Exists(r.fs, target)
	if err != nil {
		return errors.Wrapf(err, "failed to check '%s'", target)
	}
	if exists {
		return errors.Errorf("'%s' already exists", target)
	}

	if err := path2.WriteYaml(r.fs, target, config.Default()); err != nil {
		return err
	}

	successPrinter.Fprintf(r.stdout, "Created '%s'\n", target)
	return nil
}
