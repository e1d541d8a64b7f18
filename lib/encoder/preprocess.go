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

package encoder

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/simulacralab/sacembed/lib/dataset"
)

// Preprocess returns the deterministic CLIP input transform: resize the
// shorter side to size with Catmull-Rom interpolation, then center-crop to
// size x size. Pixel rescaling and mean/std normalization happen inside the
// inference pipeline, so the dataset side stays a plain image.
func Preprocess(size int) dataset.Transform {
	return func(img image.Image) image.Image {
		return centerCrop(resizeShortSide(img, size), size)
	}
}

func resizeShortSide(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}

	var nw, nh int
	if w < h {
		nw = size
		nh = (h*size + w/2) / w
	} else {
		nh = size
		nw = (w*size + h/2) / h
	}
	if nw == w && nh == h {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func centerCrop(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}

	x0 := b.Min.X + (b.Dx()-size)/2
	y0 := b.Min.Y + (b.Dy()-size)/2
	crop := image.Rect(x0, y0, x0+size, y0+size).Intersect(b)

	dst := image.NewNRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	xdraw.Copy(dst, image.Point{}, img, crop, xdraw.Src, nil)
	return dst
}
