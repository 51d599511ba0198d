// Package store keeps a PostgreSQL ledger of captured previews.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateCaptures = `
        CREATE TABLE IF NOT EXISTS captures (
            id UUID PRIMARY KEY,
            key TEXT NOT NULL UNIQUE,
            destination_url TEXT NOT NULL,
            location TEXT NOT NULL,
            status_code INTEGER NOT NULL,
            request_id TEXT NOT NULL DEFAULT '',
            captured_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlUpsertCapture = `
        INSERT INTO captures (id, key, destination_url, location, status_code, request_id, captured_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (key) DO UPDATE SET
            destination_url = EXCLUDED.destination_url,
            location = EXCLUDED.location,
            status_code = EXCLUDED.status_code,
            request_id = EXCLUDED.request_id,
            captured_at = EXCLUDED.captured_at;
    `
	sqlRecentCaptures = `
        SELECT id, key, destination_url, location, status_code, request_id, captured_at
        FROM captures
        ORDER BY captured_at DESC
        LIMIT $1;
    `
)

// Record is one capture in the ledger.
type Record struct {
	ID             uuid.UUID `json:"id"`
	Key            string    `json:"key"`
	DestinationURL string    `json:"destinationUrl"`
	Location       string    `json:"location"`
	StatusCode     int       `json:"statusCode"`
	RequestID      string    `json:"requestId,omitempty"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// Store provides the PostgreSQL backed capture ledger.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for databaseURL, makes sure the captures table exists
// and returns the store with a function releasing the pool.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the captures table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateCaptures); err != nil {
		return fmt.Errorf("failed to create captures table: %w", err)
	}
	return nil
}

// RecordCapture inserts rec, replacing any earlier capture with the same key.
// A zero ID or timestamp is filled in.
func (s *Store) RecordCapture(ctx context.Context, rec Record) error {
	if rec.Key == "" {
		return errors.New("capture record has no key")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, sqlUpsertCapture,
		rec.ID.String(), rec.Key, rec.DestinationURL, rec.Location, rec.StatusCode, rec.RequestID, rec.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record capture %q: %w", rec.Key, err)
	}
	s.log.Debug("Capture recorded.", zap.String("key", rec.Key), zap.String("location", rec.Location))
	return nil
}

// RecentCaptures lists up to limit captures, newest first.
func (s *Store) RecentCaptures(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentCaptures, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec Record
			id  string
		)
		if err := rows.Scan(&id, &rec.Key, &rec.DestinationURL, &rec.Location, &rec.StatusCode, &rec.RequestID, &rec.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("capture %q has a malformed id: %w", rec.Key, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate captures: %w", err)
	}
	return records, nil
}
