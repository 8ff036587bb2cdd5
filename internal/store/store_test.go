package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/savehere/savehere/pkg/savelib"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleItem() *savelib.Item {
	return &savelib.Item{
		URL:           "https://example.com/file.zip",
		Status:        savelib.StatusPaused,
		SpeedLimit:    512 * savelib.KB,
		CustomName:    "backup.zip",
		Subfolder:     "archives",
		UseServerName: true,
		TotalSize:     savelib.ContentLength(-1),
		DateAdded:     time.Now().Truncate(time.Second),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleItem()
	id, err := s.Create(ctx, want)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("Create returned id 0")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != want.URL || got.Status != want.Status ||
		got.CustomName != want.CustomName || got.Subfolder != want.Subfolder ||
		!got.UseServerName || got.SpeedLimit != want.SpeedLimit {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if !got.TotalSize.IsUnknown() {
		t.Errorf("TotalSize = %d, want unknown", got.TotalSize.V())
	}
	if !got.DateAdded.Equal(want.DateAdded) {
		t.Errorf("DateAdded = %v, want %v", got.DateAdded, want.DateAdded)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), 77); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("Get(77) err = %v, want ErrItemNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Create(ctx, sampleItem())
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, item := range items {
		if want := ids[len(ids)-1-i]; item.ID != want {
			t.Errorf("items[%d].ID = %d, want %d", i, item.ID, want)
		}
	}
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := sampleItem()
	id, err := s.Create(ctx, item)
	if err != nil {
		t.Fatal(err)
	}
	item.ID = id
	item.Status = savelib.StatusFinished
	item.Progress = 100
	item.FileName = "backup.zip"
	item.TotalSize = savelib.ContentLength(9000)
	item.Downloaded = savelib.ContentLength(9000)

	if err := s.Update(ctx, item); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != savelib.StatusFinished || got.Progress != 100 ||
		got.FileName != "backup.zip" || got.TotalSize.V() != 9000 {
		t.Errorf("after Update: %+v", got)
	}

	item.ID = 12345
	if err := s.Update(ctx, item); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("Update missing err = %v, want ErrItemNotFound", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleItem())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, id, savelib.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, id)
	if got.Status != savelib.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
	if err := s.UpdateStatus(ctx, 999, savelib.StatusPaused); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("UpdateStatus missing err = %v, want ErrItemNotFound", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleItem())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateProgress(ctx, id, 42, 1024.5, 900.25, 4200); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, id)
	if got.Progress != 42 || got.CurrentSpeed != 1024.5 ||
		got.AverageSpeed != 900.25 || got.Downloaded.V() != 4200 {
		t.Errorf("after UpdateProgress: %+v", got)
	}
	if err := s.UpdateProgress(ctx, 999, 1, 0, 0, 0); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("UpdateProgress missing err = %v, want ErrItemNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleItem())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("Get after Delete err = %v, want ErrItemNotFound", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, savelib.ErrItemNotFound) {
		t.Errorf("second Delete err = %v, want ErrItemNotFound", err)
	}
}

func TestIdsNotReused(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, sampleItem())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, err := s.Create(ctx, sampleItem())
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Errorf("id %d reused after deleting %d", second, first)
	}
}
