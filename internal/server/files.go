package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/savehere/savehere/internal/metrics"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

var (
	errInvalidRange        = errors.New("invalid range header")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// FileHandler serves completed downloads below the download root with
// single-range request support, so media players can seek and download
// clients can resume.
type FileHandler struct {
	log     logger.Logger
	fs      afero.Fs
	baseDir string
}

// NewFileHandler serves files from baseDir on the given filesystem.
func NewFileHandler(l logger.Logger, fs afero.Fs, baseDir string) *FileHandler {
	return &FileHandler{log: l, fs: fs, baseDir: baseDir}
}

func (h *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/files/")
	if rel == "" {
		h.fail(w, http.StatusNotFound, "not found")
		return
	}

	full, err := savelib.ResolveWithin(h.baseDir, rel)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid file path")
		return
	}
	info, err := h.fs.Stat(full)
	if err != nil || info.IsDir() {
		h.fail(w, http.StatusNotFound, "not found")
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(full))

	start, end := int64(0), size-1
	status := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" {
		start, end, err = parseByteRange(rng, size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			h.fail(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
			return
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	length := end - start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))

	if r.Method == http.MethodHead {
		metrics.FileRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		w.WriteHeader(status)
		return
	}

	f, err := h.fs.Open(full)
	if err != nil {
		h.log.Error("open %s: %s", full, err.Error())
		h.fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer f.Close()
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			h.log.Error("seek %s: %s", full, err.Error())
			h.fail(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	metrics.FileRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	w.WriteHeader(status)

	body := savelib.NewCallbackReader(
		savelib.NewBoundedReader(f, length),
		func(n int) { metrics.ServedBytesTotal.Add(float64(n)) },
	)
	if _, err := io.Copy(w, body); err != nil {
		// client went away mid-stream, nothing to clean up
		h.log.Info("serving %s interrupted: %s", rel, err.Error())
	}
}

func (h *FileHandler) fail(w http.ResponseWriter, status int, msg string) {
	metrics.FileRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}

// parseByteRange interprets a single-range Range header against a file
// of the given size. The start is mandatory; a missing, malformed or
// out-of-file start is not satisfiable. The end is forgiving: missing,
// malformed, negative, oversized or below-start ends clamp to the last
// byte.
func parseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}
	spec, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, errInvalidRange
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, errInvalidRange
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errRangeNotSatisfiable
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	end, err := strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil || end < start || end > size-1 {
		end = size - 1
	}
	return start, end, nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
