package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/savehere/savehere/internal/store"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	engine, err := savelib.NewEngine("/downloads", &savelib.EngineOpts{
		Fs:             afero.NewMemMapFs(),
		ChunkSize:      64,
		SampleInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	m := savelib.NewManager(context.Background(), st, engine, &savelib.ManagerOpts{
		Logger: logger.NewNopLogger(),
	})
	s := NewServer(logger.NewNopLogger(), m, nil, &Config{Version: "test"})
	ts := httptest.NewServer(s.handler())
	t.Cleanup(func() {
		ts.Close()
		s.rpc.Close()
	})
	return s, ts
}

// call posts one JSON-RPC request and decodes the response envelope.
func call(t *testing.T, url, method string, params any) map[string]any {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope["jsonrpc"] != "2.0" {
		t.Fatalf("jsonrpc = %v, want 2.0", envelope["jsonrpc"])
	}
	return envelope
}

func result(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	res, ok := envelope["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result in response: %v", envelope)
	}
	return res
}

func errorCode(t *testing.T, envelope map[string]any) int {
	t.Helper()
	errObj, ok := envelope["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error in response: %v", envelope)
	}
	return int(errObj["code"].(float64))
}

func TestSystemGetVersion(t *testing.T) {
	_, ts := newTestServer(t)
	res := result(t, call(t, ts.URL, "system.getVersion", nil))
	if res["version"] != "test" {
		t.Errorf("version = %v, want test", res["version"])
	}
}

func TestQueueAdd(t *testing.T) {
	_, ts := newTestServer(t)
	res := result(t, call(t, ts.URL, "queue.add", map[string]any{
		"url":        "https://example.com/file.zip",
		"subfolder":  "archives",
		"speedLimit": "512KB",
	}))
	if res["id"].(float64) < 1 {
		t.Errorf("id = %v", res["id"])
	}
	if res["status"] != "paused" {
		t.Errorf("status = %v, want paused", res["status"])
	}
	if res["speed_limit"].(float64) != float64(512*savelib.KB) {
		t.Errorf("speed_limit = %v", res["speed_limit"])
	}
}

func TestQueueAddInvalid(t *testing.T) {
	_, ts := newTestServer(t)
	cases := []struct {
		name   string
		params map[string]any
	}{
		{"missing url", map[string]any{}},
		{"bad scheme", map[string]any{"url": "ftp://example.com/f"}},
		{"traversal subfolder", map[string]any{"url": "https://example.com/f", "subfolder": "../up"}},
		{"bad speed limit", map[string]any{"url": "https://example.com/f", "speedLimit": "fastish"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := errorCode(t, call(t, ts.URL, "queue.add", tc.params)); code != -32602 {
				t.Errorf("error code = %d, want -32602", code)
			}
		})
	}
}

func TestQueueGetAndList(t *testing.T) {
	_, ts := newTestServer(t)
	added := result(t, call(t, ts.URL, "queue.add", map[string]any{
		"url": "https://example.com/a.bin",
	}))
	id := added["id"].(float64)

	got := result(t, call(t, ts.URL, "queue.get", map[string]any{"id": id}))
	if got["url"] != "https://example.com/a.bin" {
		t.Errorf("url = %v", got["url"])
	}

	listed := result(t, call(t, ts.URL, "queue.list", map[string]any{}))
	items := listed["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}

	filtered := result(t, call(t, ts.URL, "queue.list", map[string]any{"status": "finished"}))
	if n := len(filtered["items"].([]any)); n != 0 {
		t.Errorf("finished items = %d, want 0", n)
	}

	if code := errorCode(t, call(t, ts.URL, "queue.list", map[string]any{"status": "sideways"})); code != -32602 {
		t.Errorf("bad status filter code = %d, want -32602", code)
	}
}

func TestQueueGetMissing(t *testing.T) {
	_, ts := newTestServer(t)
	if code := errorCode(t, call(t, ts.URL, "queue.get", map[string]any{"id": 404})); code != -32001 {
		t.Errorf("error code = %d, want -32001", code)
	}
}

func TestQueueRemove(t *testing.T) {
	_, ts := newTestServer(t)
	added := result(t, call(t, ts.URL, "queue.add", map[string]any{
		"url": "https://example.com/rm.bin",
	}))
	id := added["id"].(float64)

	result(t, call(t, ts.URL, "queue.remove", map[string]any{"id": id}))
	if code := errorCode(t, call(t, ts.URL, "queue.get", map[string]any{"id": id})); code != -32001 {
		t.Errorf("get after remove code = %d, want -32001", code)
	}
	if code := errorCode(t, call(t, ts.URL, "queue.remove", map[string]any{"id": id})); code != -32001 {
		t.Errorf("second remove code = %d, want -32001", code)
	}
}

func TestQueueStartRunsTransfer(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "downloaded payload")
	}))
	defer origin.Close()

	s, ts := newTestServer(t)
	added := result(t, call(t, ts.URL, "queue.add", map[string]any{
		"url": origin.URL + "/payload.bin",
	}))
	id := added["id"].(float64)

	result(t, call(t, ts.URL, "queue.start", map[string]any{"id": id}))

	deadline := time.Now().Add(10 * time.Second)
	for {
		got := result(t, call(t, ts.URL, "queue.get", map[string]any{"id": id}))
		if got["status"] == "finished" {
			if got["progress"].(float64) != 100 {
				t.Errorf("progress = %v, want 100", got["progress"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transfer never finished, last: %v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}

	body, err := afero.ReadFile(s.files.fs, "/downloads/payload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "downloaded payload" {
		t.Errorf("downloaded file = %q", body)
	}
}

func TestQueueStartMissing(t *testing.T) {
	_, ts := newTestServer(t)
	if code := errorCode(t, call(t, ts.URL, "queue.start", map[string]any{"id": 9})); code != -32001 {
		t.Errorf("error code = %d, want -32001", code)
	}
}

func TestQueuePauseAndCancelIdle(t *testing.T) {
	_, ts := newTestServer(t)
	added := result(t, call(t, ts.URL, "queue.add", map[string]any{
		"url": "https://example.com/idle.bin",
	}))
	id := added["id"].(float64)

	result(t, call(t, ts.URL, "queue.pause", map[string]any{"id": id}))
	got := result(t, call(t, ts.URL, "queue.get", map[string]any{"id": id}))
	if got["status"] != "paused" {
		t.Errorf("status after idle pause = %v, want paused", got["status"])
	}

	result(t, call(t, ts.URL, "queue.cancel", map[string]any{"id": id}))
	got = result(t, call(t, ts.URL, "queue.get", map[string]any{"id": id}))
	if got["status"] != "cancelled" {
		t.Errorf("status after cancel = %v, want cancelled", got["status"])
	}

	// idempotent
	result(t, call(t, ts.URL, "queue.cancel", map[string]any{"id": id}))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
