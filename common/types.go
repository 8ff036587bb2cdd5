// Package common defines the wire types and method names shared by the
// daemon's RPC surface and the client library.
package common

import "github.com/savehere/savehere/pkg/savelib"

// JSON-RPC method names served by the daemon.
const (
	MethodVersion     = "system.getVersion"
	MethodQueueAdd    = "queue.add"
	MethodQueueGet    = "queue.get"
	MethodQueueList   = "queue.list"
	MethodQueueRemove = "queue.remove"
	MethodQueueStart  = "queue.start"
	MethodQueuePause  = "queue.pause"
	MethodQueueCancel = "queue.cancel"
)

// Notification method names pushed to WebSocket clients.
const (
	NotifyProgress = "queue.progress"
	NotifyState    = "queue.state"
	NotifyLog      = "queue.log"
)

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
}

// AddParams is the input for queue.add.
type AddParams struct {
	URL           string `json:"url"`
	CustomName    string `json:"customName,omitempty"`
	Subfolder     string `json:"subfolder,omitempty"`
	UseServerName bool   `json:"useServerName,omitempty"`
	// SpeedLimit is a human-readable rate such as "512KB" or "1.5MB".
	// Empty or "0" means unlimited.
	SpeedLimit string `json:"speedLimit,omitempty"`
}

// IDParam is a common input carrying just a queue item id.
type IDParam struct {
	ID int64 `json:"id"`
}

// ListParams is the input for queue.list.
type ListParams struct {
	// Status filters by lifecycle state; empty means all.
	Status string `json:"status,omitempty"`
}

// ListResult is the response for queue.list.
type ListResult struct {
	Items []*savelib.Item `json:"items"`
}

// EmptyResult is the response of methods that return no data.
type EmptyResult struct{}

// ProgressNotification is pushed once per sampling window of a running
// transfer.
type ProgressNotification struct {
	ID           int64   `json:"id"`
	Progress     int     `json:"progress"`
	CurrentSpeed float64 `json:"currentSpeed"`
	AverageSpeed float64 `json:"averageSpeed"`
}

// StateNotification is pushed on every lifecycle transition.
type StateNotification struct {
	ID     int64          `json:"id"`
	Status savelib.Status `json:"status"`
}

// LogNotification carries one per-item log line.
type LogNotification struct {
	ID   int64  `json:"id"`
	Line string `json:"line"`
}
