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

// Package loader groups dataset samples into fixed-size batches, overlapping
// image decode and preprocessing with downstream inference.
//
// Samples within a batch may be fetched by concurrent workers but are always
// placed by index, so the delivered order is identical for every worker
// count. A Loader is single-pass: create a fresh one for a second iteration.
package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/simulacralab/sacembed/lib/dataset"
)

// ErrExhausted is returned when Batches is called on an already-consumed
// Loader.
var ErrExhausted = errors.New("loader: iterator already consumed")

// Provider is the indexed sample source a Loader iterates over.
type Provider interface {
	Len() int
	Get(i int) (dataset.Sample, error)
}

// StartMode controls when fetch workers are brought up.
type StartMode string

const (
	// StartModeSpawn brings up fresh fetch goroutines for each batch.
	StartModeSpawn StartMode = "spawn"

	// StartModeFork starts a persistent worker pool when the Loader is
	// created.
	StartModeFork StartMode = "fork"

	// StartModeForkServer starts the persistent pool lazily, on the first
	// batch.
	StartModeForkServer StartMode = "forkserver"
)

// ParseStartMode validates a start mode string.
func ParseStartMode(s string) (StartMode, error) {
	switch StartMode(s) {
	case StartModeSpawn, StartModeFork, StartModeForkServer:
		return StartMode(s), nil
	case "":
		return StartModeSpawn, nil
	default:
		return "", fmt.Errorf("loader: unknown start mode %q (valid: fork, forkserver, spawn)", s)
	}
}

// Config holds batching options.
type Config struct {
	// BatchSize is the number of samples per batch. Must be positive.
	BatchSize int

	// NumWorkers is the number of concurrent fetch workers. Zero fetches
	// samples synchronously on the iteration goroutine.
	NumWorkers int

	// StartMode controls worker startup. Defaults to StartModeSpawn.
	StartMode StartMode
}

// Batch is an ordered group of up to BatchSize samples, stacked into two
// parallel slices. Images[j] and Ratings[j] come from source index Start+j.
type Batch struct {
	Images  []image.Image
	Ratings []float32
	Start   int
}

// Loader produces a lazy, finite, single-pass sequence of batches covering
// every provider index exactly once, in order.
type Loader struct {
	provider Provider
	cfg      Config
	pool     *workerPool
	consumed atomic.Bool
}

// New validates cfg and builds a Loader. With StartModeFork the worker pool
// starts immediately; call Close if the Loader is never iterated.
func New(p Provider, cfg Config) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.NumWorkers < 0 {
		return nil, fmt.Errorf("loader: num workers must be non-negative, got %d", cfg.NumWorkers)
	}
	mode, err := ParseStartMode(string(cfg.StartMode))
	if err != nil {
		return nil, err
	}
	cfg.StartMode = mode

	l := &Loader{provider: p, cfg: cfg}
	if mode == StartModeFork && cfg.NumWorkers > 0 {
		l.pool = newWorkerPool(p, cfg.NumWorkers)
	}
	return l, nil
}

// Close shuts down the persistent worker pool, if any. Iterating to
// completion closes it as well; Close is safe to call in both cases.
func (l *Loader) Close() {
	if l.pool != nil {
		l.pool.close()
	}
}

// Batches starts iteration. The batch channel is closed after the final
// batch; the error channel then yields nil on success or the first error
// encountered. Each batch is fully formed before it is delivered.
func (l *Loader) Batches(ctx context.Context) (<-chan Batch, <-chan error) {
	batches := make(chan Batch, 1)
	errc := make(chan error, 1)

	if !l.consumed.CompareAndSwap(false, true) {
		errc <- ErrExhausted
		close(batches)
		close(errc)
		return batches, errc
	}

	go func() {
		defer close(batches)
		defer close(errc)
		defer l.Close()

		if l.cfg.StartMode == StartModeForkServer && l.cfg.NumWorkers > 0 {
			l.pool = newWorkerPool(l.provider, l.cfg.NumWorkers)
		}

		n := l.provider.Len()
		for start := 0; start < n; start += l.cfg.BatchSize {
			end := min(start+l.cfg.BatchSize, n)

			samples, err := l.fetch(ctx, start, end)
			if err != nil {
				errc <- err
				return
			}

			batch := Batch{
				Images:  make([]image.Image, len(samples)),
				Ratings: make([]float32, len(samples)),
				Start:   start,
			}
			for j, s := range samples {
				batch.Images[j] = s.Image
				batch.Ratings[j] = s.Rating
			}

			select {
			case batches <- batch:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return batches, errc
}

// fetch materializes samples [start, end), each placed at its index offset.
func (l *Loader) fetch(ctx context.Context, start, end int) ([]dataset.Sample, error) {
	out := make([]dataset.Sample, end-start)

	switch {
	case l.pool != nil:
		if err := l.pool.fetch(ctx, start, out); err != nil {
			return nil, err
		}
	case l.cfg.NumWorkers > 0:
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.cfg.NumWorkers)
		for j := range out {
			idx := start + j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				s, err := l.provider.Get(idx)
				if err != nil {
					return err
				}
				out[j] = s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	default:
		for j := range out {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s, err := l.provider.Get(start + j)
			if err != nil {
				return nil, err
			}
			out[j] = s
		}
	}

	return out, nil
}

// workerPool is a persistent set of fetch goroutines fed one index at a time.
type workerPool struct {
	jobs      chan poolJob
	closeOnce sync.Once
}

type poolJob struct {
	index int
	slot  int
	out   []dataset.Sample
	wg    *sync.WaitGroup
	fail  func(error)
}

func newWorkerPool(p Provider, workers int) *workerPool {
	wp := &workerPool{jobs: make(chan poolJob)}
	for range workers {
		go func() {
			for job := range wp.jobs {
				s, err := p.Get(job.index)
				if err != nil {
					job.fail(err)
				} else {
					job.out[job.slot] = s
				}
				job.wg.Done()
			}
		}()
	}
	return wp
}

// fetch schedules one batch worth of indices and waits for all of them.
func (wp *workerPool) fetch(ctx context.Context, start int, out []dataset.Sample) error {
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() { firstErr = err })
	}

	for j := range out {
		wg.Add(1)
		job := poolJob{index: start + j, slot: j, out: out, wg: &wg, fail: fail}
		select {
		case wp.jobs <- job:
		case <-ctx.Done():
			fail(ctx.Err())
			wg.Done()
		}
	}
	wg.Wait()

	return firstErr
}

func (wp *workerPool) close() {
	wp.closeOnce.Do(func() { close(wp.jobs) })
}
