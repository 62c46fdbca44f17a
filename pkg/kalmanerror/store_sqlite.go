package kalmanerror

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the error values in a local single file database
type SQLiteStore struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Connected to kalman error SQLite database")

	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[ctdf.Indices]float64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT trip_pattern_ref, stop_path_index, segment_index, error_value FROM kalman_errors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query kalman errors: %w", err)
	}
	defer rows.Close()

	values := map[ctdf.Indices]float64{}
	for rows.Next() {
		var key ctdf.Indices
		var value float64

		if err := rows.Scan(&key.TripPatternRef, &key.StopPathIndex, &key.SegmentIndex, &value); err != nil {
			return nil, fmt.Errorf("failed to scan kalman error: %w", err)
		}

		values[key] = value
	}

	return values, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, key ctdf.Indices, value float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kalman_errors (trip_pattern_ref, stop_path_index, segment_index, error_value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (trip_pattern_ref, stop_path_index, segment_index)
		DO UPDATE SET error_value = excluded.error_value, updated_at = excluded.updated_at
	`, key.TripPatternRef, key.StopPathIndex, key.SegmentIndex, value, time.Now().UTC().Format(time.RFC3339Nano))

	return err
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
