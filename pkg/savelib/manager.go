package savelib

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"

	"github.com/savehere/savehere/pkg/logger"
)

// Manager owns the download queue. It persists items through a Store,
// runs transfers through an Engine and enforces single-flight per item
// through a Registry. All methods are safe for concurrent use.
type Manager struct {
	store    Store
	registry *Registry
	engine   *Engine
	hooks    *EventHooks
	log      logger.Logger
	ctx      context.Context
}

// ManagerOpts are the optional knobs of NewManager.
type ManagerOpts struct {
	// Hooks receives progress, state and log events for every item.
	Hooks *EventHooks
	// Logger defaults to a no-op logger.
	Logger logger.Logger
}

// NewManager wires a queue manager. The context bounds the lifetime of
// every transfer the manager starts; cancelling it stops them all.
func NewManager(ctx context.Context, store Store, engine *Engine, opts *ManagerOpts) *Manager {
	if opts == nil {
		opts = &ManagerOpts{}
	}
	if opts.Hooks == nil {
		opts.Hooks = &EventHooks{}
	}
	opts.Hooks.setDefault()
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Manager{
		store:    store,
		registry: NewRegistry(),
		engine:   engine,
		hooks:    opts.Hooks,
		log:      opts.Logger,
		ctx:      ctx,
	}
}

// AddOpts carry the optional fields of a new queue item.
type AddOpts struct {
	CustomName    string
	Subfolder     string
	UseServerName bool
	SpeedLimit    int64
}

// Add validates the url, persists a new paused item and returns it.
func (m *Manager) Add(ctx context.Context, url string, opts *AddOpts) (*Item, error) {
	if opts == nil {
		opts = &AddOpts{}
	}
	if err := ValidateURL(url); err != nil {
		return nil, err
	}
	if opts.Subfolder != "" {
		if _, err := ResolveWithin(m.engine.BaseDir(), opts.Subfolder); err != nil {
			return nil, err
		}
	}
	item := &Item{
		URL:           url,
		Status:        StatusPaused,
		CustomName:    opts.CustomName,
		Subfolder:     opts.Subfolder,
		UseServerName: opts.UseServerName,
		SpeedLimit:    opts.SpeedLimit,
		TotalSize:     ContentLength(-1),
		DateAdded:     time.Now(),
	}
	id, err := m.store.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	m.log.Info("queued %s as item %d", url, id)
	return item, nil
}

// Get returns one item or ErrItemNotFound.
func (m *Manager) Get(ctx context.Context, id int64) (*Item, error) {
	return m.store.Get(ctx, id)
}

// List returns every queue item, newest first.
func (m *Manager) List(ctx context.Context) ([]*Item, error) {
	return m.store.List(ctx)
}

// Delete removes the item from the queue. A running transfer for the
// item is signalled cancelled; downloaded files are left on disk.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	m.registry.Signal(id, ErrCancelledByUser)
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Info("removed item %d", id)
	return nil
}

// Begin claims the item for a transfer: it checks the state, acquires
// the controller and flips the item to downloading, all before
// returning. The returned run step performs the blocking transfer and
// must be called exactly once; its outcome is nil on completion,
// ErrPausedByUser or ErrCancelledByUser on a cooperative stop, any
// other error on failure. Begin itself returns ErrAlreadyDownloading
// when a transfer for the item is in flight, so of two concurrent
// callers exactly one gets a run step. Progress carries over from the
// previous attempt; the engine rewrites it once the resumption offset
// is known.
func (m *Manager) Begin(ctx context.Context, id int64) (func() error, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == StatusDownloading {
		return nil, ErrAlreadyDownloading
	}
	ctrl, err := m.registry.Acquire(m.ctx, id)
	if err != nil {
		return nil, err
	}

	item.Status = StatusDownloading
	item.CurrentSpeed = 0
	item.AverageSpeed = 0
	if err := m.store.Update(ctx, item); err != nil {
		m.registry.Release(id)
		return nil, err
	}
	m.hooks.OnStateChange(id, StatusDownloading)

	return func() error {
		defer m.registry.Release(id)
		err := m.engine.Transfer(ctrl.Context(), item, m.patchHooks(item))
		m.settle(item, err)
		return err
	}, nil
}

// Start runs the transfer for the item and blocks until it ends.
func (m *Manager) Start(id int64) error {
	run, err := m.Begin(m.ctx, id)
	if err != nil {
		return err
	}
	return run()
}

// Pause requests a cooperative stop of a running transfer. Items in any
// other state are left untouched; the state flip to paused happens when
// the transfer loop observes the signal and unwinds.
func (m *Manager) Pause(ctx context.Context, id int64) error {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != StatusDownloading {
		return nil
	}
	if m.registry.Signal(id, ErrPausedByUser) {
		m.log.Info("pause requested for item %d", id)
	}
	return nil
}

// Cancel marks the item cancelled and signals a running transfer to
// stop. Cancelling an already cancelled item is a no-op.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status == StatusCancelled {
		return nil
	}
	if err := m.store.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return err
	}
	m.hooks.OnStateChange(id, StatusCancelled)
	m.registry.Signal(id, ErrCancelledByUser)
	m.log.Info("cancelled item %d", id)
	return nil
}

// Recover flips items a previous process left marked downloading back
// to paused. Called once at daemon startup, before any transfer runs.
func (m *Manager) Recover(ctx context.Context) error {
	items, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Status != StatusDownloading || m.registry.Has(item.ID) {
			continue
		}
		if err := m.store.UpdateStatus(ctx, item.ID, StatusPaused); err != nil {
			return err
		}
		m.log.Info("recovered stale item %d to paused", item.ID)
	}
	return nil
}

// Fs returns the filesystem downloads are written to.
func (m *Manager) Fs() afero.Fs {
	return m.engine.Fs()
}

// BaseDir returns the absolute download root.
func (m *Manager) BaseDir() string {
	return m.engine.BaseDir()
}

// Running reports whether a transfer for the item is in flight.
func (m *Manager) Running(id int64) bool {
	return m.registry.Has(id)
}

// patchHooks wraps the manager's hooks so every progress sample is
// persisted before it is emitted; readers of the store never see values
// newer than what listeners were told.
func (m *Manager) patchHooks(item *Item) *EventHooks {
	base := m.hooks
	return &EventHooks{
		OnProgress: func(id int64, percent int, current, average float64) {
			err := m.store.UpdateProgress(m.ctx, id, percent, current, average, item.Downloaded.V())
			if err != nil && !errors.Is(err, ErrItemNotFound) {
				m.log.Error("persist progress for item %d: %s", id, err.Error())
			}
			base.OnProgress(id, percent, current, average)
		},
		OnStateChange: base.OnStateChange,
		OnLog:         base.OnLog,
	}
}

// settle maps a transfer outcome to the item's terminal state and
// persists it. A transfer racing a Delete finds its row gone; that is
// not an error worth surfacing.
func (m *Manager) settle(item *Item, transferErr error) {
	switch {
	case transferErr == nil:
		item.Status = StatusFinished
		item.Progress = 100
	case errors.Is(transferErr, ErrCancelledByUser):
		item.Status = StatusCancelled
	case errors.Is(transferErr, ErrPausedByUser):
		item.Status = StatusPaused
	default:
		item.Status = StatusPaused
		m.log.Error("transfer for item %d failed: %s", item.ID, transferErr.Error())
		m.hooks.OnLog(item.ID, "download failed: "+transferErr.Error())
	}
	item.CurrentSpeed = 0
	if err := m.store.Update(m.ctx, item); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return
		}
		m.log.Error("persist item %d: %s", item.ID, err.Error())
		return
	}
	m.hooks.OnStateChange(item.ID, item.Status)
}
