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

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE generations (id INTEGER PRIMARY KEY, method TEXT, prompt TEXT);
CREATE TABLE images (id INTEGER PRIMARY KEY, gid INTEGER REFERENCES generations(id), idx INTEGER);
CREATE TABLE ratings (iid INTEGER REFERENCES images(id), rating REAL);
CREATE TABLE paths (iid INTEGER REFERENCES images(id), path TEXT);
`

// newTestDB builds a rating database on disk and returns its path.
func newTestDB(t *testing.T) (string, *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratings.sqlite")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return path, db
}

func seedImage(t *testing.T, db *sqlx.DB, gid, iid, idx int64, path string, ratings ...float64) {
	t.Helper()
	_, err := db.Exec(`INSERT OR IGNORE INTO generations (id, method, prompt) VALUES (?, ?, ?)`,
		gid, "k_lms", "a test prompt")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO images (id, gid, idx) VALUES (?, ?, ?)`, iid, gid, idx)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO paths (iid, path) VALUES (?, ?)`, iid, path)
	require.NoError(t, err)
	for _, r := range ratings {
		_, err = db.Exec(`INSERT INTO ratings (iid, rating) VALUES (?, ?)`, iid, r)
		require.NoError(t, err)
	}
}

func TestRecords_MeanRating(t *testing.T) {
	path, db := newTestDB(t)
	seedImage(t, db, 1, 1, 0, "a/0001.png", 2, 4)
	seedImage(t, db, 1, 2, 1, "a/0002.png", 5)
	seedImage(t, db, 2, 3, 0, "b/0001.png", 1, 2, 6)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	byPath := map[string]Record{}
	for _, r := range records {
		byPath[r.Path] = r
	}
	assert.InDelta(t, 3.0, byPath["a/0001.png"].MeanRating, 1e-9)
	assert.InDelta(t, 5.0, byPath["a/0002.png"].MeanRating, 1e-9)
	assert.InDelta(t, 3.0, byPath["b/0001.png"].MeanRating, 1e-9)
	assert.Equal(t, int64(2), byPath["b/0001.png"].GenerationID)
	assert.Equal(t, int64(1), byPath["a/0002.png"].ImageIndex)
}

func TestRecords_OneRecordPerImage(t *testing.T) {
	path, db := newTestDB(t)
	// Many ratings per image must still collapse to a single record.
	seedImage(t, db, 1, 1, 0, "a/0001.png", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 5.5, records[0].MeanRating, 1e-9)
}

func TestRecords_UnratedImageExcluded(t *testing.T) {
	path, db := newTestDB(t)
	seedImage(t, db, 1, 1, 0, "a/0001.png", 7)
	seedImage(t, db, 1, 2, 1, "a/0002.png") // no ratings: inner join drops it

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a/0001.png", records[0].Path)
}

func TestRecords_EmptyStore(t *testing.T) {
	path, _ := newTestDB(t)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sqlite"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRecords_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE unrelated (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Records(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
}
