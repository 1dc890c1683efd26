package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazavi/yumekai-sub000/server/store"
)

var ErrNotFound = errors.New("not found")

const schema = `
	CREATE TABLE IF NOT EXISTS records (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)
`

// Repository stores the top-level records of the shared store (one row per
// room) in sqlite.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &Repository{db: db}, nil
}

var _ store.BatchPersister = (*Repository)(nil)

const upsertRecord = `
	INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

const deleteRecord = "DELETE FROM records WHERE key = ?"

func (r *Repository) SaveRecord(key string, value []byte) error {
	if _, err := r.db.Exec(upsertRecord, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to save record '%s': %w", key, err)
	}
	return nil
}

func (r *Repository) DeleteRecord(key string) error {
	if _, err := r.db.Exec(deleteRecord, key); err != nil {
		return fmt.Errorf("failed to delete record '%s': %w", key, err)
	}
	return nil
}

// ApplyRecords saves and deletes (nil value) records in one transaction.
func (r *Repository) ApplyRecords(records map[string][]byte) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range records {
		if value == nil {
			_, err = tx.Exec(deleteRecord, key)
		} else {
			_, err = tx.Exec(upsertRecord, key, value, now)
		}
		if err != nil {
			return fmt.Errorf("failed to apply record '%s': %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func (r *Repository) GetRecord(key string) ([]byte, error) {
	query := "SELECT value FROM records WHERE key = ?"
	var value []byte
	if err := r.db.QueryRow(query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying record '%s': %w", key, err)
	}
	return value, nil
}

func (r *Repository) LoadRecords() (map[string][]byte, error) {
	rows, err := r.db.Query("SELECT key, value FROM records")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over records: %w", err)
	}
	return records, nil
}
