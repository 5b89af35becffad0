package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"github.com/xmos/xetest/cmd"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	isDebug := false
	color.NoColor = os.Getenv("NO_COLOR") != ""

	versionCommand := cmd.VersionCmd(commit)

	cli.VersionPrinter = func(cCtx *cli.Context) {
		err := versionCommand.Action(cCtx)
		if err != nil {
			panic(err)
		}
	}

	app := &cli.App{
		Name:     "xetest",
		Version:  version,
		Usage:    "Build the test projects with the cross-compiling toolchain, run them on the simulator and check their output",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Value:       false,
				Usage:       "show debug information",
				Destination: &isDebug,
			},
		},
		Commands: []*cli.Command{
			cmd.Run(&isDebug),
			cmd.List(&isDebug),
			cmd.CleanCmd(&isDebug),
			cmd.Init(),
			versionCommand,
		},
	}

	_ = app.Run(os.Args)
}
