package server

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/google/uuid"

	"github.com/savehere/savehere/common"
	"github.com/savehere/savehere/pkg/logger"
	"github.com/savehere/savehere/pkg/savelib"
)

// Notifier fans queue events out to the jrpc2 servers of all connected
// WebSocket clients. Subscribers are keyed by a random id so a client
// that reconnects never collides with its stale registration.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*jrpc2.Server
	log         logger.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier(l logger.Logger) *Notifier {
	return &Notifier{
		subscribers: make(map[uuid.UUID]*jrpc2.Server),
		log:         l,
	}
}

// Register adds a subscriber and returns its key for Unregister.
func (n *Notifier) Register(srv *jrpc2.Server) uuid.UUID {
	key := uuid.New()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers[key] = srv
	return key
}

// Unregister removes a subscriber. Unknown keys are a no-op.
func (n *Notifier) Unregister(key uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, key)
}

// Count returns the number of connected subscribers.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}

// Broadcast pushes a notification to every subscriber. Subscribers that
// fail to receive are dropped; their connection is gone or going.
func (n *Notifier) Broadcast(method string, params any) {
	n.mu.RLock()
	subs := make(map[uuid.UUID]*jrpc2.Server, len(n.subscribers))
	for key, srv := range n.subscribers {
		subs[key] = srv
	}
	n.mu.RUnlock()

	var failed []uuid.UUID
	for key, srv := range subs {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("push %s failed: %s", method, err.Error())
			failed = append(failed, key)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, key := range failed {
			delete(n.subscribers, key)
		}
		n.mu.Unlock()
	}
}

// Hooks returns an event sink that broadcasts every queue event.
func (n *Notifier) Hooks() *savelib.EventHooks {
	return &savelib.EventHooks{
		OnProgress: func(id int64, percent int, current, average float64) {
			n.Broadcast(common.NotifyProgress, &common.ProgressNotification{
				ID:           id,
				Progress:     percent,
				CurrentSpeed: current,
				AverageSpeed: average,
			})
		},
		OnStateChange: func(id int64, status savelib.Status) {
			n.Broadcast(common.NotifyState, &common.StateNotification{ID: id, Status: status})
		},
		OnLog: func(id int64, line string) {
			n.Broadcast(common.NotifyLog, &common.LogNotification{ID: id, Line: line})
		},
	}
}
