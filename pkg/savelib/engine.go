package savelib

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	// DefaultChunkSize is the copy buffer size for one read/write cycle.
	DefaultChunkSize = 80 * KB
	// DefaultSampleInterval is the wall-clock period at which speed and
	// progress are computed, persisted and emitted.
	DefaultSampleInterval = time.Second

	defaultUserAgent = "SaveHere/1.0"
)

// Engine performs one resumable transfer at a time per call. It owns no
// queue state; the manager passes it an item to fill in and an event
// sink. Many Transfer calls may run concurrently on the same Engine.
type Engine struct {
	client      *http.Client
	fs          afero.Fs
	baseDir     string
	chunkSize   int
	sampleEvery time.Duration
	byteSink    func(n int)
}

// EngineOpts are the optional knobs of NewEngine.
type EngineOpts struct {
	// Client is the http client used for all requests.
	// Defaults to http.DefaultClient.
	Client *http.Client
	// Fs is the filesystem transfers write to. Defaults to the os
	// filesystem; tests use an in-memory one.
	Fs afero.Fs
	// ChunkSize overrides DefaultChunkSize.
	ChunkSize int
	// SampleInterval overrides DefaultSampleInterval.
	SampleInterval time.Duration
	// ByteSink, when set, receives the size of every chunk written.
	// Used to feed aggregate byte counters.
	ByteSink func(n int)
}

// NewEngine creates a transfer engine rooted at baseDir. The directory
// is created if missing; every destination path is confined to it.
func NewEngine(baseDir string, opts *EngineOpts) (*Engine, error) {
	if opts == nil {
		opts = &EngineOpts{}
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = int(DefaultChunkSize)
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	if err := opts.Fs.MkdirAll(abs, 0755); err != nil {
		return nil, err
	}
	return &Engine{
		client:      opts.Client,
		fs:          opts.Fs,
		baseDir:     abs,
		chunkSize:   opts.ChunkSize,
		sampleEvery: opts.SampleInterval,
		byteSink:    opts.ByteSink,
	}, nil
}

// BaseDir returns the absolute download root.
func (e *Engine) BaseDir() string {
	return e.baseDir
}

// Fs returns the filesystem transfers are written to.
func (e *Engine) Fs() afero.Fs {
	return e.fs
}

// Transfer downloads item.URL into the download directory, resuming from
// an existing temp file when the server honors range requests. It
// returns nil on success, the cancellation cause (ErrPausedByUser or
// ErrCancelledByUser) on a cooperative stop, and any other error on
// failure. The temp file is retained on stop and failure so a later
// attempt can resume.
func (e *Engine) Transfer(ctx context.Context, item *Item, hooks *EventHooks) error {
	if hooks == nil {
		hooks = &EventHooks{}
	}
	hooks.setDefault()

	if err := ValidateURL(item.URL); err != nil {
		return err
	}

	// First request: headers only, to learn the server-proposed name and
	// content type. The body is discarded; the transfer issues its own
	// request once the resumption offset is known.
	probe, err := e.request(ctx, item.URL, 0)
	if err != nil {
		return e.wrapStop(ctx, err)
	}
	src := NameSource{
		URL:           item.URL,
		CustomName:    item.CustomName,
		Disposition:   probe.Header.Get("Content-Disposition"),
		ContentType:   probe.Header.Get("Content-Type"),
		UseServerName: item.UseServerName,
	}
	probe.Body.Close()
	name := ResolveFileName(src)

	dest, err := ResolveWithin(e.baseDir, item.Subfolder, name)
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	finalPath, partPath, offset, err := nextAvailablePath(e.fs, dest)
	if err != nil {
		return err
	}

	resp, err := e.request(ctx, item.URL, offset)
	if err != nil {
		return e.wrapStop(ctx, err)
	}
	defer resp.Body.Close()

	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		// Server ignored the Range header; the existing bytes are
		// worthless and the transfer restarts from scratch.
		hooks.OnLog(item.ID, fmt.Sprintf("server ignored range request (%s), restarting", resp.Status))
		offset = 0
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flag = os.O_WRONLY | os.O_APPEND
	}
	f, err := e.fs.OpenFile(partPath, flag, 0644)
	if err != nil {
		return err
	}

	item.FileName = filepath.Base(finalPath)
	item.TotalSize = ContentLength(-1)
	if resp.ContentLength >= 0 {
		item.TotalSize = ContentLength(resp.ContentLength + offset)
	}
	item.Downloaded = ContentLength(offset)
	item.Progress = 0
	if !item.TotalSize.IsUnknown() {
		item.Progress = percentOf(offset, item.TotalSize.V())
	}
	hooks.OnLog(item.ID, fmt.Sprintf("downloading %s -> %s (%s, resuming at %d)",
		item.URL, item.FileName, item.TotalSize, offset))
	// Readers polling the queue during a resume should never see the
	// progress dip below the carried-over offset.
	hooks.OnProgress(item.ID, item.Progress, item.CurrentSpeed, item.AverageSpeed)

	copyErr := e.copyLoop(ctx, item, hooks, resp.Body, f, offset)
	closeErr := f.Close()
	if copyErr != nil {
		e.dropEmptyPart(partPath, offset)
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	if err := e.fs.Rename(partPath, finalPath); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if err := e.fs.Chmod(finalPath, 0777); err != nil {
		// Not worth failing a completed transfer over.
		hooks.OnLog(item.ID, fmt.Sprintf("chmod %s: %v", finalPath, err))
	}

	item.Progress = 100
	hooks.OnProgress(item.ID, item.Progress, item.CurrentSpeed, item.AverageSpeed)
	hooks.OnLog(item.ID, "download complete")
	return nil
}

// copyLoop streams the body to the temp file in fixed-size chunks,
// polling cancellation once per chunk and sampling speed/progress at
// wall-clock boundaries rather than per chunk.
func (e *Engine) copyLoop(ctx context.Context, item *Item, hooks *EventHooks, body io.Reader, f afero.File, offset int64) error {
	if item.SpeedLimit > 0 {
		body = NewRateLimitedReader(body, item.SpeedLimit)
	}
	if e.byteSink != nil {
		body = NewCallbackReader(body, e.byteSink)
	}

	var (
		buf          = make([]byte, e.chunkSize)
		written      = offset
		windowBytes  int64
		attemptBytes int64
		attemptStart = time.Now()
		windowStart  = attemptStart
	)

	for {
		select {
		case <-ctx.Done():
			return stopCause(ctx)
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			written += int64(n)
			windowBytes += int64(n)
			attemptBytes += int64(n)
			item.Downloaded = ContentLength(written)
			if !item.TotalSize.IsUnknown() {
				item.Progress = percentOf(written, item.TotalSize.V())
			}
		}

		if elapsed := time.Since(windowStart); elapsed >= e.sampleEvery {
			item.CurrentSpeed = float64(windowBytes) / elapsed.Seconds()
			item.AverageSpeed = float64(attemptBytes) / time.Since(attemptStart).Seconds()
			hooks.OnProgress(item.ID, item.Progress, item.CurrentSpeed, item.AverageSpeed)
			windowBytes = 0
			windowStart = time.Now()
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if err := stopCause(ctx); err != nil {
				return err
			}
			return fmt.Errorf("read: %w", readErr)
		}
	}
}

func (e *Engine) request(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("server responded with %s", resp.Status)
	}
	return resp, nil
}

// dropEmptyPart removes a temp file that a failed fresh attempt created
// without writing a single byte; a zero-length file has no resume value.
func (e *Engine) dropEmptyPart(partPath string, offset int64) {
	if offset > 0 {
		return
	}
	if info, err := e.fs.Stat(partPath); err == nil && info.Size() == 0 {
		_ = e.fs.Remove(partPath)
	}
}

// wrapStop maps a request error that was caused by a cancellation signal
// back to its cause so the caller sees the stop, not the transport noise.
func (e *Engine) wrapStop(ctx context.Context, err error) error {
	if cause := stopCause(ctx); cause != nil {
		return cause
	}
	return err
}

// stopCause returns the cancellation cause of a done context, or nil
// when the context is still live.
func stopCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

func percentOf(written, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(written) / float64(total)))
	if p > 100 {
		p = 100
	}
	return p
}
