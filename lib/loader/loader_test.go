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

package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simulacralab/sacembed/lib/dataset"
)

// fakeProvider yields samples whose rating encodes the index, so ordering
// bugs show up as value mismatches.
type fakeProvider struct {
	n      int
	failAt int // index that returns an error, -1 for none
}

func newFakeProvider(n int) *fakeProvider {
	return &fakeProvider{n: n, failAt: -1}
}

func (p *fakeProvider) Len() int { return p.n }

func (p *fakeProvider) Get(i int) (dataset.Sample, error) {
	if i == p.failAt {
		return dataset.Sample{}, fmt.Errorf("synthetic failure at %d", i)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[0] = uint8(i % 256)
	return dataset.Sample{Image: img, Rating: float32(i)}, nil
}

// collect drains a loader into concatenated ratings.
func collect(t *testing.T, l *Loader) ([]float32, error) {
	t.Helper()
	var ratings []float32
	batches, errc := l.Batches(context.Background())
	for b := range batches {
		require.Equal(t, len(b.Images), len(b.Ratings))
		ratings = append(ratings, b.Ratings...)
	}
	return ratings, <-errc
}

func TestBatches_CoversEveryIndexInOrder(t *testing.T) {
	const n = 23
	for _, cfg := range []Config{
		{BatchSize: 10, NumWorkers: 0},
		{BatchSize: 10, NumWorkers: 1},
		{BatchSize: 10, NumWorkers: 4, StartMode: StartModeSpawn},
		{BatchSize: 10, NumWorkers: 4, StartMode: StartModeFork},
		{BatchSize: 10, NumWorkers: 4, StartMode: StartModeForkServer},
		{BatchSize: 1, NumWorkers: 2},
		{BatchSize: 100, NumWorkers: 8},
	} {
		t.Run(fmt.Sprintf("bs=%d_workers=%d_mode=%s", cfg.BatchSize, cfg.NumWorkers, cfg.StartMode), func(t *testing.T) {
			l, err := New(newFakeProvider(n), cfg)
			require.NoError(t, err)

			ratings, err := collect(t, l)
			require.NoError(t, err)
			require.Len(t, ratings, n)
			for i, r := range ratings {
				assert.Equal(t, float32(i), r)
			}
		})
	}
}

func TestBatches_BatchSizeInvariance(t *testing.T) {
	const n = 17
	small, err := New(newFakeProvider(n), Config{BatchSize: 4, NumWorkers: 3})
	require.NoError(t, err)
	large, err := New(newFakeProvider(n), Config{BatchSize: 10, NumWorkers: 3})
	require.NoError(t, err)

	a, errA := collect(t, small)
	b, errB := collect(t, large)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestBatches_BatchBoundaries(t *testing.T) {
	l, err := New(newFakeProvider(25), Config{BatchSize: 10})
	require.NoError(t, err)

	var sizes []int
	var starts []int
	batches, errc := l.Batches(context.Background())
	for b := range batches {
		sizes = append(sizes, len(b.Ratings))
		starts = append(starts, b.Start)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Equal(t, []int{0, 10, 20}, starts)
}

func TestBatches_EmptyProvider(t *testing.T) {
	l, err := New(newFakeProvider(0), Config{BatchSize: 10, NumWorkers: 4})
	require.NoError(t, err)

	ratings, err := collect(t, l)
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestBatches_SampleErrorAborts(t *testing.T) {
	for _, workers := range []int{0, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			p := newFakeProvider(30)
			p.failAt = 13
			l, err := New(p, Config{BatchSize: 10, NumWorkers: workers})
			require.NoError(t, err)

			ratings, err := collect(t, l)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "synthetic failure at 13")
			// The first batch may have been delivered, the failing one must not.
			assert.LessOrEqual(t, len(ratings), 10)
		})
	}
}

func TestBatches_NotRestartable(t *testing.T) {
	l, err := New(newFakeProvider(5), Config{BatchSize: 2})
	require.NoError(t, err)

	_, err = collect(t, l)
	require.NoError(t, err)

	batches, errc := l.Batches(context.Background())
	for range batches {
		t.Fatal("second pass must not yield batches")
	}
	assert.ErrorIs(t, <-errc, ErrExhausted)
}

func TestBatches_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := New(newFakeProvider(100), Config{BatchSize: 5, NumWorkers: 2})
	require.NoError(t, err)

	batches, errc := l.Batches(ctx)
	<-batches // take one batch, then cancel
	cancel()

	for range batches {
	}
	err = <-errc
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(newFakeProvider(1), Config{BatchSize: 0})
	assert.Error(t, err)

	_, err = New(newFakeProvider(1), Config{BatchSize: 1, NumWorkers: -1})
	assert.Error(t, err)

	_, err = New(newFakeProvider(1), Config{BatchSize: 1, StartMode: "threads"})
	assert.Error(t, err)
}

func TestParseStartMode(t *testing.T) {
	for _, s := range []string{"fork", "forkserver", "spawn"} {
		mode, err := ParseStartMode(s)
		require.NoError(t, err)
		assert.Equal(t, StartMode(s), mode)
	}

	mode, err := ParseStartMode("")
	require.NoError(t, err)
	assert.Equal(t, StartModeSpawn, mode)

	_, err = ParseStartMode("bogus")
	assert.Error(t, err)
}

func TestClose_UnusedForkLoader(t *testing.T) {
	l, err := New(newFakeProvider(10), Config{BatchSize: 2, NumWorkers: 2, StartMode: StartModeFork})
	require.NoError(t, err)
	l.Close()
	l.Close() // idempotent
}

func TestBatches_ErrorIsFirstFailure(t *testing.T) {
	p := newFakeProvider(8)
	p.failAt = 3
	l, err := New(p, Config{BatchSize: 8, NumWorkers: 4, StartMode: StartModeFork})
	require.NoError(t, err)

	_, err = collect(t, l)
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
