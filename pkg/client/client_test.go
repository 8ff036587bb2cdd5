package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/pkg/savelib"
)

// fakeDaemon serves a minimal daemon RPC surface over WebSocket and
// keeps the jrpc2 server around so tests can push notifications.
type fakeDaemon struct {
	mu  sync.Mutex
	srv *jrpc2.Server
}

func (d *fakeDaemon) handler() http.HandlerFunc {
	methods := handler.Map{
		common.MethodVersion: handler.New(func(context.Context) (*common.VersionResult, error) {
			return &common.VersionResult{Version: "fake"}, nil
		}),
		common.MethodQueueGet: handler.New(func(_ context.Context, p *common.IDParam) (*savelib.Item, error) {
			if p.ID != 3 {
				return nil, &jrpc2.Error{Code: jrpc2.Code(-32001), Message: "item not found"}
			}
			return &savelib.Item{ID: 3, URL: "https://example.com/x", Status: savelib.StatusPaused}, nil
		}),
		common.MethodQueueStart: handler.New(func(context.Context, *common.IDParam) (*common.EmptyResult, error) {
			return &common.EmptyResult{}, nil
		}),
		common.MethodQueueList: handler.New(func(context.Context, *common.ListParams) (*common.ListResult, error) {
			return &common.ListResult{Items: []*savelib.Item{{ID: 1}, {ID: 2}}}, nil
		}),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := cws.Accept(w, r, &cws.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ch := &wsChannel{conn: conn, ctx: r.Context()}
		srv := jrpc2.NewServer(methods, &jrpc2.ServerOptions{AllowPush: true})
		d.mu.Lock()
		d.srv = srv
		d.mu.Unlock()
		srv.Start(ch)
		srv.Wait()
	}
}

func (d *fakeDaemon) server() *jrpc2.Server {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv
}

func startFake(t *testing.T) (string, *fakeDaemon) {
	t.Helper()
	d := &fakeDaemon{}
	ts := httptest.NewServer(d.handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http"), d
}

func TestClientCalls(t *testing.T) {
	url, _ := startFake(t)
	ctx := context.Background()

	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	v, err := c.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != "fake" {
		t.Errorf("version = %q, want fake", v.Version)
	}

	item, err := c.Get(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if item.ID != 3 || item.Status != savelib.StatusPaused {
		t.Errorf("item = %+v", item)
	}

	if _, err := c.Get(ctx, 4); err == nil {
		t.Error("Get(4) succeeded, want error")
	}

	items, err := c.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}

	if err := c.Start(ctx, 3); err != nil {
		t.Errorf("Start: %v", err)
	}
}

func TestClientNotifications(t *testing.T) {
	url, d := startFake(t)
	ctx := context.Background()

	got := make(chan *common.ProgressNotification, 1)
	states := make(chan *common.StateNotification, 1)
	c, err := Dial(ctx, url, &Handlers{
		OnProgress: func(n *common.ProgressNotification) { got <- n },
		OnState:    func(n *common.StateNotification) { states <- n },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// First call forces the server side to be fully up.
	if _, err := c.Version(ctx); err != nil {
		t.Fatal(err)
	}

	srv := d.server()
	if srv == nil {
		t.Fatal("fake daemon has no session")
	}
	if err := srv.Notify(ctx, common.NotifyProgress, &common.ProgressNotification{
		ID: 3, Progress: 55, CurrentSpeed: 2048,
	}); err != nil {
		t.Fatal(err)
	}
	if err := srv.Notify(ctx, common.NotifyState, &common.StateNotification{
		ID: 3, Status: savelib.StatusFinished,
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-got:
		if n.ID != 3 || n.Progress != 55 {
			t.Errorf("progress notification = %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("progress notification not delivered")
	}
	select {
	case n := <-states:
		if n.Status != savelib.StatusFinished {
			t.Errorf("state notification = %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("state notification not delivered")
	}
}
