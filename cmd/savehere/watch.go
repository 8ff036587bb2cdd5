package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/pkg/client"
	"github.com/savehere/savehere/pkg/savelib"
)

var watchCmd = cli.Command{
	Name:      "watch",
	Usage:     "show live progress bars for running downloads",
	UsageText: "savehere watch [<id>]",
	Action:    watch,
}

func watch(ctx *cli.Context) error {
	var only int64
	if arg := ctx.Args().First(); arg != "" {
		id, err := argID(ctx)
		if err != nil {
			return err
		}
		only = id
	}
	return watchItems(only, false)
}

// watchItems renders progress bars fed by daemon push notifications.
// With a non-zero id it follows that one item and returns when it
// reaches a resting state; with zero it follows everything until
// interrupted. startFirst additionally kicks the transfer off.
func watchItems(only int64, startFirst bool) error {
	w := &watcher{
		bars: make(map[int64]*itemBar),
		only: only,
		done: make(chan struct{}),
	}
	w.p = mpb.New(mpb.WithWidth(64))
	c, err := dial(&client.Handlers{
		OnProgress: w.onProgress,
		OnState:    w.onState,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	// Prime bars with what is already in flight.
	items, err := c.List(context.Background(), string(savelib.StatusDownloading))
	if err != nil {
		return err
	}
	for _, item := range items {
		if only != 0 && item.ID != only {
			continue
		}
		w.bar(item.ID).bar.SetCurrent(int64(item.Progress))
	}

	if startFirst {
		if err := c.Start(context.Background(), only); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-w.done:
	case <-sigCtx.Done():
	}
	w.mu.Lock()
	open := make([]*itemBar, 0, len(w.bars))
	for _, ib := range w.bars {
		open = append(open, ib)
	}
	w.mu.Unlock()
	for _, ib := range open {
		ib.bar.Abort(false)
	}
	w.p.Wait()
	return nil
}

type watcher struct {
	p    *mpb.Progress
	mu   sync.Mutex
	bars map[int64]*itemBar
	only int64
	once sync.Once
	done chan struct{}
}

// itemBar pairs a rendered bar with the speed its decorator shows.
// The speed is read by the render goroutine, so it is atomic rather
// than guarded by the watcher mutex.
type itemBar struct {
	bar   *mpb.Bar
	speed atomic.Uint64
}

// bar returns the item's progress bar, creating it on first sight.
func (w *watcher) bar(id int64) *itemBar {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ib, ok := w.bars[id]; ok {
		return ib
	}
	ib := &itemBar{}
	name := fmt.Sprintf("item %d", id)
	ib.bar = w.p.New(100,
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Any(func(decor.Statistics) string {
				speed := ib.speed.Load()
				if speed == 0 {
					return ""
				}
				return " " + humanize.IBytes(speed) + "/s"
			}),
		),
	)
	w.bars[id] = ib
	return ib
}

func (w *watcher) onProgress(n *common.ProgressNotification) {
	if w.only != 0 && n.ID != w.only {
		return
	}
	ib := w.bar(n.ID)
	if n.CurrentSpeed > 0 {
		ib.speed.Store(uint64(n.CurrentSpeed))
	} else {
		ib.speed.Store(0)
	}
	ib.bar.SetCurrent(int64(n.Progress))
}

func (w *watcher) onState(n *common.StateNotification) {
	if w.only != 0 && n.ID != w.only {
		return
	}
	switch n.Status {
	case savelib.StatusFinished:
		w.bar(n.ID).bar.SetCurrent(100)
	case savelib.StatusPaused, savelib.StatusCancelled:
		w.bar(n.ID).bar.Abort(false)
	case savelib.StatusDownloading:
		w.bar(n.ID)
		return
	}
	if w.only != 0 {
		w.once.Do(func() { close(w.done) })
	}
}
