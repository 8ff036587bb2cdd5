package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	app := cli.App{
		Name:      "saveherd",
		HelpName:  "saveherd",
		Usage:     "SaveHere download queue daemon.",
		UsageText: "saveherd [options...]",
		Version:   version,
		Flags:     daemonFlags,
		Action:    run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "saveherd: %s\n", err.Error())
		os.Exit(1)
	}
}
