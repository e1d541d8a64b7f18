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

package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simulacralab/sacembed/lib/store"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func grayImage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func rgbaImage(w, h int, a uint8) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: a})
		}
	}
	return img
}

func TestGet_ChannelNormalization(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "gray.png"), grayImage(8, 8))
	writePNG(t, filepath.Join(dir, "rgba.png"), rgbaImage(8, 8, 200))
	writePNG(t, filepath.Join(dir, "rgb.png"), rgbaImage(8, 8, 255))

	records := []store.Record{
		{Path: "gray.png", MeanRating: 5},
		{Path: "rgba.png", MeanRating: 5},
		{Path: "rgb.png", MeanRating: 5},
	}
	ds := New(dir, records, nil)
	require.Equal(t, 3, ds.Len())

	for i := range records {
		sample, err := ds.Get(i)
		require.NoError(t, err)

		nrgba, ok := sample.Image.(*image.NRGBA)
		require.True(t, ok, "sample %d not canonicalized", i)
		assert.Equal(t, image.Rect(0, 0, 8, 8), nrgba.Bounds())
		// Alpha must be fully opaque after canonicalization.
		for p := 3; p < len(nrgba.Pix); p += 4 {
			require.Equal(t, uint8(0xff), nrgba.Pix[p])
		}
	}
}

func TestGet_AppliesTransform(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a", "img.png"), grayImage(16, 16))

	called := 0
	tf := func(img image.Image) image.Image {
		called++
		return img.(*image.NRGBA).SubImage(image.Rect(0, 0, 4, 4))
	}
	ds := New(dir, []store.Record{{Path: "a/img.png", MeanRating: 7.5}}, tf)

	sample, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.Equal(t, 4, sample.Image.Bounds().Dx())
	assert.Equal(t, float32(7.5), sample.Rating)
}

func TestGet_MissingFile(t *testing.T) {
	ds := New(t.TempDir(), []store.Record{{Path: "missing.png"}}, nil)
	_, err := ds.Get(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageLoad)
}

func TestGet_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not an image"), 0o644))

	ds := New(dir, []store.Record{{Path: "bad.png"}}, nil)
	_, err := ds.Get(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageLoad)
}
