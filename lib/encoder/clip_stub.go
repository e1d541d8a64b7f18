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

//go:build !(onnx && ORT)

package encoder

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"
)

var errNoONNX = errors.New("CLIP encoder not available: build with -tags=\"onnx,ORT\" to enable")

// CLIP is a stub when built without ONNX Runtime support.
// To enable inference, build with: CGO_ENABLED=1 go build -tags="onnx,ORT"
type CLIP struct{}

// New returns an error when ONNX support is disabled.
func New(cfg Config, logger *zap.Logger) (*CLIP, error) {
	return nil, errNoONNX
}

// Encode returns an error for the stub since it cannot be used.
func (c *CLIP) Encode(ctx context.Context, images []image.Image) ([][]float32, error) {
	return nil, errNoONNX
}

// Identifier returns an empty identifier for the stub.
func (c *CLIP) Identifier() string { return "" }

// Dim returns 0 for the stub.
func (c *CLIP) Dim() int { return 0 }

// Device returns DeviceCPU for the stub.
func (c *CLIP) Device() Device { return DeviceCPU }

// Close is a no-op for the stub.
func (c *CLIP) Close() error { return nil }
