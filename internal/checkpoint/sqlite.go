package checkpoint

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite ledger store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS objects (
		src_bucket TEXT NOT NULL,
		dst_bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		size INTEGER NOT NULL,
		status TEXT NOT NULL,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (src_bucket, key)
	);

	CREATE INDEX IF NOT EXISTS idx_objects_status ON objects(status);
	`

	_, err := s.db.Exec(query)
	return err
}

// GetObject retrieves a ledger record, nil when absent
func (s *SQLiteStore) GetObject(srcBucket, key string) (*ObjectRecord, error) {
	if s.closed {
		return nil, fmt.Errorf("ledger store is closed")
	}

	var result *ObjectRecord
	err := s.retryOnBusy(func() error {
		var err error
		result, err = s.getObjectInternal(srcBucket, key)
		return err
	})
	return result, err
}

func (s *SQLiteStore) getObjectInternal(srcBucket, key string) (*ObjectRecord, error) {
	query := `
	SELECT src_bucket, dst_bucket, key, size, status, last_error, updated_at
	FROM objects WHERE src_bucket = ? AND key = ?
	`

	row := s.db.QueryRow(query, srcBucket, key)

	var record ObjectRecord
	var lastError sql.NullString

	err := row.Scan(
		&record.SrcBucket,
		&record.DstBucket,
		&record.Key,
		&record.Size,
		&record.Status,
		&lastError,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		record.LastError = lastError.String
	}

	return &record, nil
}

// SaveObject upserts a ledger record
func (s *SQLiteStore) SaveObject(record *ObjectRecord) error {
	if s.closed {
		return fmt.Errorf("ledger store is closed")
	}

	// Serialize writes to avoid SQLITE_BUSY from concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveObjectInternal(record)
	})
}

func (s *SQLiteStore) saveObjectInternal(record *ObjectRecord) error {
	record.UpdatedAt = time.Now()

	query := `
	INSERT INTO objects
	(src_bucket, dst_bucket, key, size, status, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(src_bucket, key) DO UPDATE SET
		dst_bucket = excluded.dst_bucket,
		size = excluded.size,
		status = excluded.status,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		record.SrcBucket,
		record.DstBucket,
		record.Key,
		record.Size,
		record.Status,
		record.LastError,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	return nil
}

// ListFailed returns all objects whose last attempt failed
func (s *SQLiteStore) ListFailed() ([]*ObjectRecord, error) {
	query := `
	SELECT src_bucket, dst_bucket, key, size, status, last_error, updated_at
	FROM objects WHERE status = ?
	ORDER BY updated_at ASC
	`

	rows, err := s.db.Query(query, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ObjectRecord

	for rows.Next() {
		var record ObjectRecord
		var lastError sql.NullString

		err := rows.Scan(
			&record.SrcBucket,
			&record.DstBucket,
			&record.Key,
			&record.Size,
			&record.Status,
			&lastError,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if lastError.Valid {
			record.LastError = lastError.String
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

// retryOnBusy retries the operation while SQLite reports contention
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if !isSQLiteBusyError(err) {
			return err
		}

		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return err
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}
