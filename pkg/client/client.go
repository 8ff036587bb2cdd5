// Package client is the Go client for the SaveHere daemon. It speaks
// JSON-RPC 2.0 over a WebSocket connection and surfaces the daemon's
// push notifications through optional callbacks.
package client

import (
	"context"
	"fmt"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/pkg/savelib"
)

// Handlers carry the notification callbacks of a client. Nil fields
// drop the corresponding notification.
type Handlers struct {
	OnProgress func(*common.ProgressNotification)
	OnState    func(*common.StateNotification)
	OnLog      func(*common.LogNotification)
}

// Client is a connected daemon session.
type Client struct {
	conn *cws.Conn
	rpc  *jrpc2.Client
}

// Dial connects to the daemon's WebSocket endpoint, e.g.
// "ws://localhost:4221/ws". Handlers may be nil when no push
// notifications are wanted.
func Dial(ctx context.Context, url string, h *Handlers) (*Client, error) {
	conn, _, err := cws.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	ch := &wsChannel{conn: conn, ctx: context.Background()}
	opts := &jrpc2.ClientOptions{}
	if h != nil {
		opts.OnNotify = h.dispatch
	}
	return &Client{
		conn: conn,
		rpc:  jrpc2.NewClient(ch, opts),
	}, nil
}

func (h *Handlers) dispatch(req *jrpc2.Request) {
	switch req.Method() {
	case common.NotifyProgress:
		if h.OnProgress != nil {
			var n common.ProgressNotification
			if err := req.UnmarshalParams(&n); err == nil {
				h.OnProgress(&n)
			}
		}
	case common.NotifyState:
		if h.OnState != nil {
			var n common.StateNotification
			if err := req.UnmarshalParams(&n); err == nil {
				h.OnState(&n)
			}
		}
	case common.NotifyLog:
		if h.OnLog != nil {
			var n common.LogNotification
			if err := req.UnmarshalParams(&n); err == nil {
				h.OnLog(&n)
			}
		}
	}
}

// Close tears the session down.
func (c *Client) Close() error {
	c.rpc.Close()
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// Version reports the daemon version.
func (c *Client) Version(ctx context.Context) (*common.VersionResult, error) {
	var res common.VersionResult
	if err := c.rpc.CallResult(ctx, common.MethodVersion, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Add queues a new download and returns the created item.
func (c *Client) Add(ctx context.Context, p *common.AddParams) (*savelib.Item, error) {
	var item savelib.Item
	if err := c.rpc.CallResult(ctx, common.MethodQueueAdd, p, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Get fetches one queue item.
func (c *Client) Get(ctx context.Context, id int64) (*savelib.Item, error) {
	var item savelib.Item
	if err := c.rpc.CallResult(ctx, common.MethodQueueGet, &common.IDParam{ID: id}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// List fetches queue items, optionally filtered by lifecycle state.
func (c *Client) List(ctx context.Context, status string) ([]*savelib.Item, error) {
	var res common.ListResult
	if err := c.rpc.CallResult(ctx, common.MethodQueueList, &common.ListParams{Status: status}, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Remove deletes a queue item.
func (c *Client) Remove(ctx context.Context, id int64) error {
	return c.call(ctx, common.MethodQueueRemove, id)
}

// Start begins or resumes the item's transfer.
func (c *Client) Start(ctx context.Context, id int64) error {
	return c.call(ctx, common.MethodQueueStart, id)
}

// Pause requests a cooperative stop of a running transfer.
func (c *Client) Pause(ctx context.Context, id int64) error {
	return c.call(ctx, common.MethodQueuePause, id)
}

// Cancel marks the item cancelled and stops a running transfer.
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.call(ctx, common.MethodQueueCancel, id)
}

func (c *Client) call(ctx context.Context, method string, id int64) error {
	var res common.EmptyResult
	return c.rpc.CallResult(ctx, method, &common.IDParam{ID: id}, &res)
}
