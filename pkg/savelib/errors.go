package savelib

import "errors"

var (
	// ErrInvalidURL is returned when an item is added with a url that is
	// empty or not an absolute http/https url.
	ErrInvalidURL = errors.New("url must be an absolute http or https url")

	// ErrItemNotFound is returned by queue operations on an unknown id.
	ErrItemNotFound = errors.New("queue item not found")

	// ErrAlreadyDownloading is returned by Start on an item whose
	// transfer is already running.
	ErrAlreadyDownloading = errors.New("item is already downloading")

	// ErrUnauthorizedPath is returned when a resolved destination escapes
	// the download directory.
	ErrUnauthorizedPath = errors.New("resolved path escapes the download directory")

	// ErrPausedByUser is the cancellation cause carried by a pause
	// request. A transfer stopped with this cause lands in StatusPaused.
	ErrPausedByUser = errors.New("transfer paused by user")

	// ErrCancelledByUser is the cancellation cause carried by a cancel
	// request. A transfer stopped with this cause lands in StatusCancelled.
	ErrCancelledByUser = errors.New("transfer cancelled by user")
)
