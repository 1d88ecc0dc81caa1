package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("blob not found")

// Record is the stored value of one key.
type Record struct {
	Key       string
	Value     []byte
	Version   int64
	Source    string
	UpdatedAt time.Time
}

// Write is one entry of a key's write history.
type Write struct {
	Key       string    `json:"key"`
	Version   int64     `json:"version"`
	Source    string    `json:"source"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get returns the latest value of key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, value, version, source, updated_at
		FROM blobs
		WHERE key = ?
	`, key)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", key, err)
	}
	return rec, nil
}

// Put stores value under key and returns the new record. The version is
// bumped atomically with the write; the first write of a key is version 1.
// source names the writing instance.
func (s *Store) Put(ctx context.Context, key string, value []byte, source string) (Record, error) {
	if key == "" {
		return Record{}, fmt.Errorf("put: empty key")
	}
	if value == nil {
		value = []byte{}
	}
	updatedAt := s.now().UTC().Round(0)
	stamp := updatedAt.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("put %q: begin: %w", key, err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO blobs (key, value, version, source, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = blobs.version + 1,
			source = excluded.source,
			updated_at = excluded.updated_at
		RETURNING version
	`, key, value, source, stamp).Scan(&version)
	if err != nil {
		return Record{}, fmt.Errorf("put %q: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO blob_history (key, version, source, size, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, key, version, source, len(value), stamp); err != nil {
		return Record{}, fmt.Errorf("put %q: history: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("put %q: commit: %w", key, err)
	}

	return Record{
		Key:       key,
		Value:     value,
		Version:   version,
		Source:    source,
		UpdatedAt: updatedAt,
	}, nil
}

// List returns every stored record ordered by key.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, version, source, updated_at
		FROM blobs
		ORDER BY key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blobs: %w", err)
	}
	return records, nil
}

// History returns the most recent writes of key, newest first.
// A limit <= 0 returns the full history.
func (s *Store) History(ctx context.Context, key string, limit int) ([]Write, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, version, source, size, updated_at
		FROM blob_history
		WHERE key = ?
		ORDER BY version DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	defer rows.Close()

	writes := []Write{}
	for rows.Next() {
		var (
			w     Write
			stamp string
		)
		if err := rows.Scan(&w.Key, &w.Version, &w.Source, &w.Size, &stamp); err != nil {
			return nil, fmt.Errorf("history %q: scan: %w", key, err)
		}
		if w.UpdatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("history %q: parse updated_at: %w", key, err)
		}
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return writes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec   Record
		stamp string
	)
	if err := row.Scan(&rec.Key, &rec.Value, &rec.Version, &rec.Source, &stamp); err != nil {
		return Record{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = t
	return rec, nil
}
