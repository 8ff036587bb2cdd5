// Package store persists the download queue in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/savehere/savehere/pkg/savelib"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT    NOT NULL,
	status          TEXT    NOT NULL,
	progress        INTEGER NOT NULL DEFAULT 0,
	current_speed   REAL    NOT NULL DEFAULT 0,
	average_speed   REAL    NOT NULL DEFAULT 0,
	speed_limit     INTEGER NOT NULL DEFAULT 0,
	custom_name     TEXT    NOT NULL DEFAULT '',
	subfolder       TEXT    NOT NULL DEFAULT '',
	use_server_name INTEGER NOT NULL DEFAULT 0,
	file_name       TEXT    NOT NULL DEFAULT '',
	total_size      INTEGER NOT NULL DEFAULT -1,
	downloaded      INTEGER NOT NULL DEFAULT 0,
	date_added      INTEGER NOT NULL
);
`

// SQLiteStore implements savelib.Store on a SQLite database file.
// AUTOINCREMENT keeps row ids unique for the lifetime of the database,
// so a deleted item's id is never handed to a new one.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the queue database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral database.
func Open(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the progress writer and readers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, item *savelib.Item) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_items (
			url, status, progress, current_speed, average_speed,
			speed_limit, custom_name, subfolder, use_server_name,
			file_name, total_size, downloaded, date_added
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.URL, string(item.Status), item.Progress,
		item.CurrentSpeed, item.AverageSpeed, item.SpeedLimit,
		item.CustomName, item.Subfolder, boolToInt(item.UseServerName),
		item.FileName, item.TotalSize.V(), item.Downloaded.V(),
		item.DateAdded.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert queue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*savelib.Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, savelib.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query queue item %d: %w", id, err)
	}
	return item, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*savelib.Item, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*savelib.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Update(ctx context.Context, item *savelib.Item) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET
			url = ?, status = ?, progress = ?, current_speed = ?,
			average_speed = ?, speed_limit = ?, custom_name = ?,
			subfolder = ?, use_server_name = ?, file_name = ?,
			total_size = ?, downloaded = ?
		WHERE id = ?`,
		item.URL, string(item.Status), item.Progress, item.CurrentSpeed,
		item.AverageSpeed, item.SpeedLimit, item.CustomName,
		item.Subfolder, boolToInt(item.UseServerName), item.FileName,
		item.TotalSize.V(), item.Downloaded.V(), item.ID)
	if err != nil {
		return fmt.Errorf("update queue item %d: %w", item.ID, err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status savelib.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status of queue item %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id int64, percent int, currentSpeed, averageSpeed float64, downloaded int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET
			progress = ?, current_speed = ?, average_speed = ?, downloaded = ?
		WHERE id = ?`,
		percent, currentSpeed, averageSpeed, downloaded, id)
	if err != nil {
		return fmt.Errorf("update progress of queue item %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete queue item %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}

const selectColumns = `
	SELECT id, url, status, progress, current_speed, average_speed,
	       speed_limit, custom_name, subfolder, use_server_name,
	       file_name, total_size, downloaded, date_added
	FROM queue_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*savelib.Item, error) {
	var (
		item          savelib.Item
		status        string
		useServerName int
		totalSize     int64
		downloaded    int64
		dateAdded     int64
	)
	err := row.Scan(&item.ID, &item.URL, &status, &item.Progress,
		&item.CurrentSpeed, &item.AverageSpeed, &item.SpeedLimit,
		&item.CustomName, &item.Subfolder, &useServerName,
		&item.FileName, &totalSize, &downloaded, &dateAdded)
	if err != nil {
		return nil, err
	}
	item.Status = savelib.Status(status)
	item.UseServerName = useServerName != 0
	item.TotalSize = savelib.ContentLength(totalSize)
	item.Downloaded = savelib.ContentLength(downloaded)
	item.DateAdded = time.Unix(dateAdded, 0)
	return &item, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 0 {
		return savelib.ErrItemNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ savelib.Store = (*SQLiteStore)(nil)
