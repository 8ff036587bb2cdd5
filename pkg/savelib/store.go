package savelib

import "context"

// Store is the persistence collaborator for queue items. Implementations
// must assign unique, never-reused ids on Create and support atomic
// per-field updates for the high-frequency progress path. Get, Update,
// UpdateStatus, UpdateProgress and Delete return ErrItemNotFound for
// unknown ids.
type Store interface {
	Create(ctx context.Context, item *Item) (int64, error)
	Get(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	Update(ctx context.Context, item *Item) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateProgress(ctx context.Context, id int64, percent int, currentSpeed, averageSpeed float64, downloaded int64) error
	Delete(ctx context.Context, id int64) error
}
