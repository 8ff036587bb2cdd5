package savelib

import "context"

// Controller is the cancellation handle of one transfer attempt. It is
// signalled at most effectively once; the first cause wins and is what the
// engine observes through context.Cause.
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Context returns the context governing the transfer attempt.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Signal cooperatively stops the attempt, recording why. The cause
// distinguishes a user pause from a user cancel so the completion path
// can pick the right terminal state.
func (c *Controller) Signal(cause error) {
	c.cancel(cause)
}

// Registry maps item ids to the controller of their active transfer.
// There is at most one controller per id at a time; it is created when a
// transfer starts and removed when the attempt ends, whatever the
// outcome. The registry is the only structure shared between transfer
// goroutines.
type Registry struct {
	controllers *VMap[int64, *Controller]
}

// NewRegistry returns an empty registry. Tests instantiate isolated
// registries; nothing here is process-global.
func NewRegistry() *Registry {
	return &Registry{controllers: NewVMap[int64, *Controller]()}
}

// Acquire creates and stores a controller for id, derived from parent.
// It returns ErrAlreadyDownloading when a controller is already present,
// which is what makes concurrent Start calls on the same item mutually
// exclusive.
func (r *Registry) Acquire(parent context.Context, id int64) (*Controller, error) {
	ctx, cancel := context.WithCancelCause(parent)
	c := &Controller{ctx: ctx, cancel: cancel}
	if !r.controllers.SetIfAbsent(id, c) {
		cancel(nil)
		return nil, ErrAlreadyDownloading
	}
	return c, nil
}

// Signal stops the active transfer for id with the given cause. It
// reports whether a controller was present.
func (r *Registry) Signal(id int64, cause error) bool {
	c, ok := r.controllers.Get(id)
	if !ok {
		return false
	}
	c.Signal(cause)
	return true
}

// Has reports whether id currently has an active controller.
func (r *Registry) Has(id int64) bool {
	_, ok := r.controllers.Get(id)
	return ok
}

// Release drops the controller for id. Safe to call when none exists.
func (r *Registry) Release(id int64) {
	r.controllers.Delete(id)
}

// Len returns the number of active controllers.
func (r *Registry) Len() int {
	return r.controllers.Len()
}
