// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists polled telemetry in SQLite. One writer (the poller) and
// occasional readers (the HTTP history endpoints); database/sql handles
// the connection sharing.
type Store struct {
	db *sql.DB
}

// LocationRow is one stored GNSS fix.
type LocationRow struct {
	ID        int64    `json:"id"`
	Timestamp string   `json:"timestamp"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude_m"`
	Source    string   `json:"source"`
}

// SensorRow is one stored scalar sample (power, environment, ...).
type SensorRow struct {
	ID        int64   `json:"id"`
	Timestamp string  `json:"timestamp"`
	DataType  string  `json:"data_type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Source    string  `json:"source"`
	Metadata  string  `json:"metadata,omitempty"`
}

// Stats summarizes table sizes for the status endpoint.
type Stats struct {
	LocationRows int64  `json:"location_rows"`
	SensorRows   int64  `json:"sensor_rows"`
	DBPath       string `json:"db_path"`
}

const schema = `
CREATE TABLE IF NOT EXISTS location_data (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	altitude   REAL,
	source     TEXT NOT NULL,
	metadata   TEXT
);
CREATE INDEX IF NOT EXISTS idx_location_timestamp ON location_data(timestamp);

CREATE TABLE IF NOT EXISTS sensor_data (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	data_type  TEXT NOT NULL,
	value      REAL NOT NULL,
	unit       TEXT NOT NULL,
	source     TEXT NOT NULL,
	metadata   TEXT
);
CREATE INDEX IF NOT EXISTS idx_sensor_type_timestamp ON sensor_data(data_type, timestamp);
`

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	log.Printf("storage: sqlite database ready at %s", path)
	return &Store{db: db}, nil
}

// AddLocation stores one fix. metadata may be nil.
func (s *Store) AddLocation(lat, lon float64, alt *float64, source string, metadata interface{}) error {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO location_data (latitude, longitude, altitude, source, metadata) VALUES (?, ?, ?, ?, ?)",
		lat, lon, alt, source, meta)
	if err != nil {
		return fmt.Errorf("inserting location: %w", err)
	}
	return nil
}

// AddSample stores one scalar sample. metadata may be nil.
func (s *Store) AddSample(dataType string, value float64, unit, source string, metadata interface{}) error {
	meta, err := marshalMeta(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO sensor_data (data_type, value, unit, source, metadata) VALUES (?, ?, ?, ?, ?)",
		dataType, value, unit, source, meta)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	return nil
}

// RecentLocations returns the newest fixes, newest first.
func (s *Store) RecentLocations(limit int) ([]LocationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT id, timestamp, latitude, longitude, altitude, source FROM location_data ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", err)
	}
	defer rows.Close()

	var out []LocationRow
	for rows.Next() {
		var r LocationRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Latitude, &r.Longitude, &r.Altitude, &r.Source); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSamples returns the newest samples of one type, newest first.
// An empty dataType selects every type.
func (s *Store) RecentSamples(dataType string, limit int) ([]SensorRow, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT id, timestamp, data_type, value, unit, source, COALESCE(metadata, '') FROM sensor_data"
	args := []interface{}{}
	if dataType != "" {
		query += " WHERE data_type = ?"
		args = append(args, dataType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var out []SensorRow
	for rows.Next() {
		var r SensorRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.DataType, &r.Value, &r.Unit, &r.Source, &r.Metadata); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats reports row counts.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM location_data").Scan(&st.LocationRows); err != nil {
		return st, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sensor_data").Scan(&st.SensorRows); err != nil {
		return st, err
	}
	return st, nil
}

// Prune deletes rows older than the given age and returns how many went.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02T15:04:05Z")

	var total int64
	res, err := s.db.Exec("DELETE FROM location_data WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning locations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.Exec("DELETE FROM sensor_data WHERE timestamp < ?", cutoff)
	if err != nil {
		return total, fmt.Errorf("pruning samples: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalMeta(metadata interface{}) (interface{}, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(b), nil
}
