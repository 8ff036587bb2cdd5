package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/pkg/savelib"
)

var (
	customName    string
	subfolder     string
	useServerName bool
	speedLimit    string
	startNow      bool
	listStatus    string
	watchAfter    bool
)

var addCmd = cli.Command{
	Name:      "add",
	Usage:     "queue a url for download",
	UsageText: "savehere add [options...] <url>",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:        "name, o",
			Usage:       "save under this file name instead of the derived one",
			Destination: &customName,
		},
		cli.StringFlag{
			Name:        "subfolder, d",
			Usage:       "save below this subfolder of the download directory",
			Destination: &subfolder,
		},
		cli.BoolFlag{
			Name:        "server-name, s",
			Usage:       "prefer the server-provided file name",
			Destination: &useServerName,
		},
		cli.StringFlag{
			Name:        "limit, l",
			Usage:       "cap the transfer rate, e.g. 512KB or 1.5MB",
			Destination: &speedLimit,
		},
		cli.BoolFlag{
			Name:        "start",
			Usage:       "start the download right away",
			Destination: &startNow,
		},
	},
	Action: add,
}

func add(ctx *cli.Context) error {
	url := ctx.Args().First()
	if url == "" {
		return fmt.Errorf("no url given")
	}
	c, err := dial(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	item, err := c.Add(context.Background(), &common.AddParams{
		URL:           url,
		CustomName:    customName,
		Subfolder:     subfolder,
		UseServerName: useServerName,
		SpeedLimit:    speedLimit,
	})
	if err != nil {
		return err
	}
	fmt.Printf("queued item %d\n", item.ID)
	if startNow {
		if err := c.Start(context.Background(), item.ID); err != nil {
			return err
		}
		fmt.Printf("started item %d\n", item.ID)
	}
	return nil
}

var listCmd = cli.Command{
	Name:      "list",
	Aliases:   []string{"ls"},
	Usage:     "list queue items",
	UsageText: "savehere list [--status <state>]",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:        "status, s",
			Usage:       "only show items in this state (paused, downloading, finished, cancelled)",
			Destination: &listStatus,
		},
	},
	Action: list,
}

func list(_ *cli.Context) error {
	c, err := dial(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	items, err := c.List(context.Background(), listStatus)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tSIZE\tNAME\tURL")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%d%%\t%s\t%s\t%s\n",
			item.ID, item.Status, item.Progress,
			item.TotalSize, displayName(item), item.URL)
	}
	return w.Flush()
}

var getCmd = cli.Command{
	Name:      "get",
	Usage:     "show one queue item",
	UsageText: "savehere get <id>",
	Action:    get,
}

func get(ctx *cli.Context) error {
	id, err := argID(ctx)
	if err != nil {
		return err
	}
	c, err := dial(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	item, err := c.Get(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("id:        %d\n", item.ID)
	fmt.Printf("url:       %s\n", item.URL)
	fmt.Printf("status:    %s\n", item.Status)
	fmt.Printf("progress:  %d%%\n", item.Progress)
	fmt.Printf("size:      %s\n", item.TotalSize)
	fmt.Printf("fetched:   %s\n", item.Downloaded)
	if item.CurrentSpeed > 0 {
		fmt.Printf("speed:     %s/s\n", humanize.IBytes(uint64(item.CurrentSpeed)))
	}
	if item.FileName != "" {
		fmt.Printf("file:      %s\n", item.FileName)
	}
	if item.Subfolder != "" {
		fmt.Printf("subfolder: %s\n", item.Subfolder)
	}
	if item.SpeedLimit > 0 {
		fmt.Printf("limit:     %s/s\n", humanize.IBytes(uint64(item.SpeedLimit)))
	}
	fmt.Printf("added:     %s\n", item.DateAdded.Format("2006-01-02 15:04:05"))
	return nil
}

var startCmd = cli.Command{
	Name:      "start",
	Usage:     "start or resume a download",
	UsageText: "savehere start [-w] <id>",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:        "watch, w",
			Usage:       "stay attached and show progress until it stops",
			Destination: &watchAfter,
		},
	},
	Action: start,
}

func start(ctx *cli.Context) error {
	id, err := argID(ctx)
	if err != nil {
		return err
	}
	if watchAfter {
		return watchItems(id, true)
	}
	c, err := dial(nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Start(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("started item %d\n", id)
	return nil
}

var pauseCmd = cli.Command{
	Name:      "pause",
	Usage:     "pause a running download, keeping its partial file",
	UsageText: "savehere pause <id>",
	Action:    simpleAction("paused", func(c clientIface, ctx context.Context, id int64) error { return c.Pause(ctx, id) }),
}

var cancelCmd = cli.Command{
	Name:      "cancel",
	Usage:     "cancel a download",
	UsageText: "savehere cancel <id>",
	Action:    simpleAction("cancelled", func(c clientIface, ctx context.Context, id int64) error { return c.Cancel(ctx, id) }),
}

var removeCmd = cli.Command{
	Name:      "remove",
	Aliases:   []string{"rm"},
	Usage:     "remove an item from the queue (files stay on disk)",
	UsageText: "savehere remove <id>",
	Action:    simpleAction("removed", func(c clientIface, ctx context.Context, id int64) error { return c.Remove(ctx, id) }),
}

type clientIface interface {
	Pause(context.Context, int64) error
	Cancel(context.Context, int64) error
	Remove(context.Context, int64) error
}

func simpleAction(verb string, f func(clientIface, context.Context, int64) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		id, err := argID(ctx)
		if err != nil {
			return err
		}
		c, err := dial(nil)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := f(c, context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("%s item %d\n", verb, id)
		return nil
	}
}

func argID(ctx *cli.Context) (int64, error) {
	arg := ctx.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("no item id given")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func displayName(item *savelib.Item) string {
	switch {
	case item.FileName != "":
		return item.FileName
	case item.CustomName != "":
		return item.CustomName
	default:
		return "-"
	}
}
