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

// Package extract drives the embedding pipeline: rating store to dataset to
// batch loader to encoder to serialized bundle. One linear pass, no retries;
// the first error anywhere aborts the run.
package extract

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/schollz/progressbar/v2"
	"go.uber.org/zap"

	"github.com/simulacralab/sacembed/lib/bundle"
	"github.com/simulacralab/sacembed/lib/dataset"
	"github.com/simulacralab/sacembed/lib/loader"
	"github.com/simulacralab/sacembed/lib/store"
)

// Encoder is the frozen model the pipeline calls once per batch.
type Encoder interface {
	Identifier() string
	Encode(ctx context.Context, images []image.Image) ([][]float32, error)
}

// Config holds everything Run needs besides the encoder itself.
type Config struct {
	// DB is the rating store location.
	DB string

	// ImagesDir is the root for resolving relative image paths.
	ImagesDir string

	// Output is the destination path for the serialized bundle.
	Output string

	// Transform is the encoder-bound preprocessing applied per sample.
	Transform dataset.Transform

	// BatchSize is the number of samples per encoder call.
	BatchSize int

	// NumWorkers is the preprocessing parallelism degree.
	NumWorkers int

	// StartMode controls loader worker startup.
	StartMode loader.StartMode

	// Progress enables the per-batch terminal progress bar.
	Progress bool
}

// Run executes one full extraction pass and writes the output artifact.
// Any error is returned unwrapped-and-unrecovered for the caller to surface;
// no partial artifact is written on failure.
func Run(ctx context.Context, logger *zap.Logger, cfg Config, enc Encoder) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Records(ctx)
	if err != nil {
		return err
	}
	logger.Info("Loaded rating records",
		zap.String("db", cfg.DB),
		zap.Int("count", len(records)))

	ds := dataset.New(cfg.ImagesDir, records, cfg.Transform)
	l, err := loader.New(ds, loader.Config{
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		StartMode:  cfg.StartMode,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	numBatches := (ds.Len() + cfg.BatchSize - 1) / cfg.BatchSize
	var bar *progressbar.ProgressBar
	if cfg.Progress && numBatches > 0 {
		bar = progressbar.New(numBatches)
	}

	w := bundle.NewWriter(enc.Identifier())
	batches, errc := l.Batches(ctx)
	for b := range batches {
		embeds, err := enc.Encode(ctx, b.Images)
		if err != nil {
			return err
		}
		if err := w.Append(embeds, b.Ratings); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if err := <-errc; err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if w.Len() != ds.Len() {
		return fmt.Errorf("extract: accumulated %d rows for %d records", w.Len(), ds.Len())
	}

	out := w.Bundle()
	if err := bundle.WriteFile(cfg.Output, out); err != nil {
		return err
	}

	logger.Info("Wrote embedding bundle",
		zap.String("output", cfg.Output),
		zap.String("model", out.Model),
		zap.Int("rows", out.Len()),
		zap.Int("dim", out.Dim()),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}
