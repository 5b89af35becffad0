package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

func VersionCmd(commit string) *cli.Command {
	return &cli.Command{
		Name: "version",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output type, possible values are: plain, json",
			},
		},
		Action: func(c *cli.Context) error {
			info := VersionInfo{c.App.Version, commit, runtime.GOOS, runtime.GOARCH}

			if c.String("output") == "json" {
				outputString, err := json.Marshal(info)
				if err != nil {
					return errors.Wrap(err, "failed to marshal the output")
				}
				fmt.Println(string(outputString))

				return nil
			}

			fmt.Printf("Current: %s (%s)\n", info.Version, info.Commit)
			fmt.Printf("Platform: %s/%s\n", info.OS, info.Arch)
			return nil
		},
	}
}
