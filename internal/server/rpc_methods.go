package server

import (
	"context"
	"errors"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/internal/metrics"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

// JSON-RPC error codes for queue operations.
const (
	codeItemNotFound  = jrpc2.Code(-32001)
	codeAlreadyActive = jrpc2.Code(-32002)
	codeInvalidParams = jrpc2.Code(-32602)
)

// RPCServer holds the queue method handlers and the HTTP bridge.
type RPCServer struct {
	log     logger.Logger
	manager *savelib.Manager
	version string
	methods handler.Map
	bridge  *jhttp.Bridge
}

// NewRPCServer builds the method map and the HTTP bridge around it.
func NewRPCServer(l logger.Logger, m *savelib.Manager, version string) *RPCServer {
	rs := &RPCServer{
		log:     l,
		manager: m,
		version: version,
	}
	rs.methods = handler.Map{
		common.MethodVersion:     handler.New(rs.systemGetVersion),
		common.MethodQueueAdd:    handler.New(rs.queueAdd),
		common.MethodQueueGet:    handler.New(rs.queueGet),
		common.MethodQueueList:   handler.New(rs.queueList),
		common.MethodQueueRemove: handler.New(rs.queueRemove),
		common.MethodQueueStart:  handler.New(rs.queueStart),
		common.MethodQueuePause:  handler.New(rs.queuePause),
		common.MethodQueueCancel: handler.New(rs.queueCancel),
	}
	bridge := jhttp.NewBridge(rs.methods, nil)
	rs.bridge = &bridge
	return rs
}

// Bridge returns the HTTP handler serving the JSON-RPC endpoint.
func (rs *RPCServer) Bridge() *jhttp.Bridge {
	return rs.bridge
}

// Close shuts down the jhttp bridge, releasing its goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	return &common.VersionResult{Version: rs.version}, nil
}

func (rs *RPCServer) queueAdd(ctx context.Context, p *common.AddParams) (*savelib.Item, error) {
	if p.URL == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: url"}
	}
	var limit int64
	if p.SpeedLimit != "" {
		var err error
		limit, err = savelib.ParseSpeedLimit(p.SpeedLimit)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	item, err := rs.manager.Add(ctx, p.URL, &savelib.AddOpts{
		CustomName:    p.CustomName,
		Subfolder:     p.Subfolder,
		UseServerName: p.UseServerName,
		SpeedLimit:    limit,
	})
	if err != nil {
		return nil, rpcError(err)
	}
	return item, nil
}

func (rs *RPCServer) queueGet(ctx context.Context, p *common.IDParam) (*savelib.Item, error) {
	item, err := rs.manager.Get(ctx, p.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return item, nil
}

func (rs *RPCServer) queueList(ctx context.Context, p *common.ListParams) (*common.ListResult, error) {
	items, err := rs.manager.List(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	if p.Status != "" {
		want := savelib.Status(p.Status)
		if !want.Valid() {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "unknown status: " + p.Status}
		}
		filtered := items[:0]
		for _, item := range items {
			if item.Status == want {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []*savelib.Item{}
	}
	return &common.ListResult{Items: items}, nil
}

func (rs *RPCServer) queueRemove(ctx context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := rs.manager.Delete(ctx, p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

// queueStart claims the item synchronously, so of two concurrent calls
// for the same id exactly one succeeds and the other gets the
// already-downloading error. The blocking transfer itself runs in the
// background.
func (rs *RPCServer) queueStart(ctx context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	run, err := rs.manager.Begin(ctx, p.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	go rs.runTransfer(p.ID, run)
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) runTransfer(id int64, run func() error) {
	metrics.TransfersStartedTotal.Inc()
	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()

	err := run()
	switch {
	case err == nil:
	case errors.Is(err, savelib.ErrPausedByUser),
		errors.Is(err, savelib.ErrCancelledByUser):
	default:
		metrics.TransferFailuresTotal.Inc()
		rs.log.Error("transfer %d: %s", id, err.Error())
	}
}

func (rs *RPCServer) queuePause(ctx context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := rs.manager.Pause(ctx, p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) queueCancel(ctx context.Context, p *common.IDParam) (*common.EmptyResult, error) {
	if err := rs.manager.Cancel(ctx, p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

// rpcError maps queue errors onto JSON-RPC error codes.
func rpcError(err error) error {
	switch {
	case errors.Is(err, savelib.ErrItemNotFound):
		return &jrpc2.Error{Code: codeItemNotFound, Message: "item not found"}
	case errors.Is(err, savelib.ErrAlreadyDownloading):
		return &jrpc2.Error{Code: codeAlreadyActive, Message: "item is already downloading"}
	case errors.Is(err, savelib.ErrInvalidURL),
		errors.Is(err, savelib.ErrUnauthorizedPath):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	default:
		return err
	}
}
