package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// IndexedDetection is one row of the local detection index.
type IndexedDetection struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	BBoxes    string    `json:"bboxes"`
	Image     string    `json:"image"`
	Uploaded  bool      `json:"uploaded"`
}

// Index keeps detection metadata queryable on the device itself, so the
// control API does not have to parse the CSV logs.
type Index struct {
	conn *sql.DB
	mu   sync.Mutex
}

// OpenIndex creates or opens the sqlite index at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open index: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	idx := &Index{conn: conn}
	if err := idx.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate index: %w", err)
	}
	return idx, nil
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		bboxes TEXT NOT NULL,
		image TEXT NOT NULL,
		uploaded INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_detections_ts ON detections(ts);
	`
	_, err := x.conn.Exec(schema)
	return err
}

// Close releases the database connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

// Insert records one detection.
func (x *Index) Insert(id string, ts time.Time, bboxes, image string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.conn.Exec(`
		INSERT INTO detections (id, ts, bboxes, image) VALUES (?, ?, ?, ?)
	`, id, ts.Unix(), bboxes, image)
	if err != nil {
		return fmt.Errorf("storage: insert detection: %w", err)
	}
	return nil
}

// Recent returns the newest n detections.
func (x *Index) Recent(n int) ([]IndexedDetection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.conn.Query(`
		SELECT id, ts, bboxes, image, uploaded
		FROM detections ORDER BY ts DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("storage: query detections: %w", err)
	}
	defer rows.Close()

	var out []IndexedDetection
	for rows.Next() {
		var d IndexedDetection
		var ts int64
		var uploaded int
		if err := rows.Scan(&d.ID, &ts, &d.BBoxes, &d.Image, &uploaded); err != nil {
			return nil, fmt.Errorf("storage: scan detection: %w", err)
		}
		d.Timestamp = time.Unix(ts, 0)
		d.Uploaded = uploaded != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of indexed detections.
func (x *Index) Count() (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var n int
	err := x.conn.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count detections: %w", err)
	}
	return n, nil
}

// MarkUploaded flags every detection whose image matches the uploaded file.
func (x *Index) MarkUploaded(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.conn.Exec(`
		UPDATE detections SET uploaded = 1 WHERE image = ?
	`, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("storage: mark uploaded: %w", err)
	}
	return nil
}
