package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultHistoryLimit is the page size used when a caller does not ask for one.
const DefaultHistoryLimit = 50

// maxHistoryLimit caps a single listing.
const maxHistoryLimit = 500

// HistoryRecord is one finished conversion.
type HistoryRecord struct {
	JobID         string    `json:"jobId"`
	SourceURL     string    `json:"sourceUrl"`
	ContentKey    string    `json:"contentKey"`
	Quality       string    `json:"quality"`
	Title         string    `json:"title"`
	Duration      string    `json:"duration"`
	FileName      string    `json:"fileName"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	Cached        bool      `json:"cached"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HistoryDB records finished conversions in SQLite.
type HistoryDB struct {
	db *sql.DB
}

// OpenHistory opens (creating if necessary) the history database at dbPath.
func OpenHistory(dbPath string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		source_url TEXT NOT NULL,
		content_key TEXT NOT NULL,
		quality TEXT NOT NULL,
		title TEXT,
		duration TEXT,
		file_name TEXT,
		file_size INTEGER,
		cached INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversions_content_key ON conversions(content_key, quality);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &HistoryDB{db: db}, nil
}

// Record inserts rec. Recording the same job id twice keeps the first row.
func (h *HistoryDB) Record(ctx context.Context, rec HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `
	INSERT OR IGNORE INTO conversions
		(job_id, source_url, content_key, quality, title, duration, file_name, file_size, cached, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cached := 0
	if rec.Cached {
		cached = 1
	}
	_, err := h.db.ExecContext(ctx, query,
		rec.JobID, rec.SourceURL, rec.ContentKey, rec.Quality, rec.Title, rec.Duration,
		rec.FileName, rec.FileSizeBytes, cached, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (h *HistoryDB) List(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	query := `
	SELECT job_id, source_url, content_key, quality, title, duration, file_name, file_size, cached, created_at
	FROM conversions ORDER BY created_at DESC, id DESC LIMIT ?
	`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0, limit)
	for rows.Next() {
		var (
			rec       HistoryRecord
			title     sql.NullString
			duration  sql.NullString
			fileName  sql.NullString
			fileSize  sql.NullInt64
			cached    int
			createdAt int64
		)
		if err := rows.Scan(&rec.JobID, &rec.SourceURL, &rec.ContentKey, &rec.Quality,
			&title, &duration, &fileName, &fileSize, &cached, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		rec.Title = title.String
		rec.Duration = duration.String
		rec.FileName = fileName.String
		rec.FileSizeBytes = fileSize.Int64
		rec.Cached = cached != 0
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return records, nil
}

// Count returns the number of recorded conversions.
func (h *HistoryDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}
