// Copyright 2025 The sacembed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store reads image records and aggregated human ratings from a
// Simulacra Aesthetic Captions SQLite database.
//
// The database is opened read-only and queried exactly once per run. The
// schema is the one produced by the rating collection bot: generations,
// images, ratings, and paths tables related by foreign keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // register the pure-Go sqlite driver
)

var (
	// ErrUnavailable indicates the database could not be opened or reached.
	ErrUnavailable = errors.New("store: database unavailable")

	// ErrSchema indicates the database is reachable but is missing the
	// expected tables or columns.
	ErrSchema = errors.New("store: unexpected schema")
)

// Record is one image with its aggregated rating. MeanRating is the
// arithmetic mean of all individual rating rows for the image, computed by
// the load query and immutable afterwards.
type Record struct {
	GenerationID int64   `db:"gid"`
	ImageIndex   int64   `db:"idx"`
	Path         string  `db:"path"`
	MeanRating   float64 `db:"rating"`
}

// recordsQuery joins generations, images, ratings, and paths, grouping by
// image so each distinct image yields exactly one row. Row order is whatever
// the join produces; callers must not assume any particular ordering.
const recordsQuery = `
SELECT generations.id AS gid, images.idx AS idx, paths.path AS path, AVG(ratings.rating) AS rating
FROM images
JOIN generations ON images.gid = generations.id
JOIN ratings ON images.id = ratings.iid
JOIN paths ON images.id = paths.iid
GROUP BY images.id`

// Store is a read-only handle on the rating database.
type Store struct {
	db *sqlx.DB
}

// Open opens the SQLite database at path in read-only mode and verifies the
// connection. Returns ErrUnavailable if the file is missing or cannot be
// opened.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	db, err := sqlx.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: pinging %s: %v", ErrUnavailable, path, err)
	}

	return &Store{db: db}, nil
}

// Records executes the aggregate query and returns one Record per distinct
// image in the store. A store with no images returns an empty slice.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, recordsQuery); err != nil {
		if isSchemaErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		return nil, fmt.Errorf("store: querying records: %w", err)
	}
	return records, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isSchemaErr reports whether err is SQLite complaining about a missing
// table or column rather than an I/O or connection failure.
func isSchemaErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}
