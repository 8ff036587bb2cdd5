package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/savehere/savehere/internal/metrics"
	"github.com/savehere/savehere/internal/server"
	"github.com/savehere/savehere/internal/store"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

var (
	port        int
	listenAll   bool
	downloadDir string
	dbPath      string
)

var daemonFlags = []cli.Flag{
	cli.IntFlag{
		Name:        "port, p",
		Usage:       "port the daemon listens on",
		EnvVar:      "SAVEHERE_PORT",
		Value:       4221,
		Destination: &port,
	},
	cli.BoolFlag{
		Name:        "listen-all",
		Usage:       "listen on all interfaces instead of localhost",
		EnvVar:      "SAVEHERE_LISTEN_ALL",
		Destination: &listenAll,
	},
	cli.StringFlag{
		Name:        "download-dir, d",
		Usage:       "directory downloads are saved to",
		EnvVar:      "SAVEHERE_DOWNLOAD_DIR",
		Value:       "downloads",
		Destination: &downloadDir,
	},
	cli.StringFlag{
		Name:        "db",
		Usage:       "path of the queue database (defaults to savehere.db in the download dir)",
		EnvVar:      "SAVEHERE_DB",
		Destination: &dbPath,
	},
}

const freeSpaceInterval = 30 * time.Second

func run(_ *cli.Context) error {
	lg := logger.NewStandardLogger(stdlog.New(os.Stderr, "saveherd ", stdlog.LstdFlags))
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := savelib.NewEngine(downloadDir, &savelib.EngineOpts{
		Client: &http.Client{},
		ByteSink: func(n int) {
			metrics.DownloadedBytesTotal.Add(float64(n))
		},
	})
	if err != nil {
		return fmt.Errorf("download directory: %w", err)
	}

	if dbPath == "" {
		dbPath = filepath.Join(engine.BaseDir(), "savehere.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := server.NewNotifier(lg)
	manager := savelib.NewManager(ctx, st, engine, &savelib.ManagerOpts{
		Hooks:  notifier.Hooks(),
		Logger: lg,
	})
	if err := manager.Recover(ctx); err != nil {
		return fmt.Errorf("recover queue: %w", err)
	}

	go watchFreeSpace(ctx, lg, engine.BaseDir())

	srv := server.NewServer(lg, manager, notifier, &server.Config{
		Port:      port,
		ListenAll: listenAll,
		Version:   version,
	})
	lg.Info("saving downloads to %s, queue db at %s", engine.BaseDir(), dbPath)
	return srv.Start(ctx)
}

// watchFreeSpace keeps the free-disk gauge current until the daemon
// stops.
func watchFreeSpace(ctx context.Context, lg logger.Logger, dir string) {
	ticker := time.NewTicker(freeSpaceInterval)
	defer ticker.Stop()
	for {
		free, err := savelib.FreeSpace(dir)
		if err != nil {
			lg.Warning("free space of %s: %s", dir, err.Error())
		} else if free >= 0 {
			metrics.DownloadDirFreeBytes.Set(float64(free))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
