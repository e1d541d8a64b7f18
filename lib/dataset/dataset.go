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

// Package dataset materializes preprocessed image samples from rating
// records. Samples are produced lazily per index so that batch loading can
// fan decode work out across workers.
package dataset

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/simulacralab/sacembed/lib/store"
)

// ErrImageLoad indicates a referenced image could not be loaded: missing
// file, corrupt data, or an unsupported format. There is no skip policy;
// the whole run aborts on the first occurrence.
var ErrImageLoad = errors.New("dataset: image load failed")

// Transform is a deterministic preprocessing step applied to every decoded
// image, typically the resize/crop bound to the encoder.
type Transform func(image.Image) image.Image

// Sample pairs a canonicalized, transformed image with its mean rating.
type Sample struct {
	Image  image.Image
	Rating float32
}

// Dataset exposes indexed access over a captured record list. It is safe
// for concurrent Get calls: all state is read-only after construction.
type Dataset struct {
	imagesDir string
	records   []store.Record
	transform Transform
}

// New builds a Dataset over records, resolving relative image paths against
// imagesDir. tf may be nil, in which case decoded images are returned as-is.
func New(imagesDir string, records []store.Record, tf Transform) *Dataset {
	return &Dataset{imagesDir: imagesDir, records: records, transform: tf}
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Record returns the source record for index i.
func (d *Dataset) Record(i int) store.Record {
	return d.records[i]
}

// Get loads, decodes, canonicalizes, and transforms the image at index i.
func (d *Dataset) Get(i int) (Sample, error) {
	rec := d.records[i]
	path := filepath.Join(d.imagesDir, filepath.FromSlash(rec.Path))

	img, err := decodeFile(path)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrImageLoad, rec.Path, err)
	}

	img = canonicalize(img)
	if d.transform != nil {
		img = d.transform(img)
	}

	return Sample{Image: img, Rating: float32(rec.MeanRating)}, nil
}

// decodeFile opens and decodes one image, releasing the file handle as soon
// as the decode completes.
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// canonicalize converts any decoded image (grayscale, palette, alpha) to a
// 3-channel RGB representation: an *image.NRGBA with fully opaque alpha and
// the origin at (0,0).
func canonicalize(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	// Drop the alpha channel the way PIL's convert("RGB") does.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
