package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/savehere/savehere/pkg/client"
)

var version = "dev"

var addr string

var addrFlag = cli.StringFlag{
	Name:        "addr, a",
	Usage:       "websocket address of the daemon",
	EnvVar:      "SAVEHERE_ADDR",
	Value:       "ws://localhost:4221/ws",
	Destination: &addr,
}

func main() {
	app := cli.App{
		Name:      "savehere",
		HelpName:  "savehere",
		Usage:     "Queue, watch and fetch downloads through a saveherd daemon.",
		UsageText: "savehere <command> [arguments...]",
		Version:   version,
		Flags:     []cli.Flag{addrFlag},
		Commands: []cli.Command{
			addCmd,
			listCmd,
			getCmd,
			startCmd,
			pauseCmd,
			cancelCmd,
			removeCmd,
			watchCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "savehere: %s\n", err.Error())
		os.Exit(1)
	}
}

// dial connects to the daemon with a short timeout.
func dial(h *client.Handlers) (*client.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Dial(ctx, addr, h)
}
