// Package savelib provides the core download queue engine for SaveHere.
// It contains the queue item model, the resumable transfer engine, the
// cancellation registry and the orchestrating manager.
package savelib

import (
	"net/url"
	"time"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	// StatusPaused is the initial state and the state an item returns to
	// after a failed or user-paused transfer.
	StatusPaused Status = "paused"
	// StatusDownloading marks an item with an active transfer.
	StatusDownloading Status = "downloading"
	// StatusFinished marks a completed transfer.
	StatusFinished Status = "finished"
	// StatusCancelled marks a transfer stopped by an explicit cancel.
	// A cancelled item can be started again.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPaused, StatusDownloading, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Item represents one queued download with its associated metadata and
// transfer state. The manager is the sole mutator of Status; the engine
// owns the progress and speed fields while a transfer is running.
type Item struct {
	// ID is the unique identifier of the item, assigned by the store at
	// creation and never reused.
	ID int64 `json:"id"`
	// URL is the absolute http/https source url.
	URL string `json:"url"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Progress is the percentage of the transfer completed, 0-100. It is
	// held at its last value while the content length is unknown and
	// forced to 100 on completion.
	Progress int `json:"progress"`
	// CurrentSpeed is the instantaneous transfer speed in bytes per
	// second, updated once per sampling window.
	CurrentSpeed float64 `json:"current_speed"`
	// AverageSpeed is the attempt-wide transfer speed in bytes per second.
	AverageSpeed float64 `json:"average_speed"`
	// SpeedLimit caps the transfer rate in bytes per second.
	// Zero means unlimited.
	SpeedLimit int64 `json:"speed_limit,omitempty"`
	// CustomName overrides the derived file name when set.
	CustomName string `json:"custom_name,omitempty"`
	// Subfolder is an optional directory below the download root.
	Subfolder string `json:"subfolder,omitempty"`
	// UseServerName honors a server-provided Content-Disposition name
	// when no custom name is set.
	UseServerName bool `json:"use_server_name"`
	// FileName is the resolved on-disk name, filled in by the engine once
	// known.
	FileName string `json:"file_name,omitempty"`
	// TotalSize is the full remote content length, -1 when unknown.
	TotalSize ContentLength `json:"total_size"`
	// Downloaded is the number of bytes present on disk, including bytes
	// carried over from a resumed temp file.
	Downloaded ContentLength `json:"downloaded"`
	// DateAdded is the time the item was queued.
	DateAdded time.Time `json:"date_added"`
}

// ValidateURL checks that raw parses as an absolute http or https url.
// It is the gate applied when an item is added to the queue.
func ValidateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
