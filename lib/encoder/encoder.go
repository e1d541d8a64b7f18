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

// Package encoder wraps a frozen, pretrained CLIP visual encoder behind a
// batch Encode call. Inference runs through ONNX Runtime via hugot when the
// binary is built with -tags="onnx,ORT"; the default build carries a stub
// that fails at construction.
package encoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// ErrEncode indicates an inference failure (model load, device, or runtime
// error). Fatal: there is no batch-size backoff or retry.
var ErrEncode = errors.New("encoder: inference failed")

// CLIP defaults used when config.json is absent or incomplete.
const (
	defaultProjectionDim = 512
	defaultImageSize     = 224
)

// Config selects and configures the encoder.
type Config struct {
	// Model is the human-facing encoder identifier stored in the output
	// bundle, e.g. "ViT-B/16".
	Model string

	// ModelDir is the local directory holding the ONNX visual encoder and
	// its config.json.
	ModelDir string

	// Device selects the compute device. DeviceAuto probes in priority
	// order.
	Device Device

	// Quantized prefers the *_quantized.onnx graph when present.
	Quantized bool
}

// clipConfig mirrors the fields of a HuggingFace CLIP config.json this tool
// cares about. Exports nest the vision settings under vision_config.
type clipConfig struct {
	ProjectionDim int `json:"projection_dim"`
	VisionConfig  struct {
		ImageSize     int `json:"image_size"`
		ProjectionDim int `json:"projection_dim"`
	} `json:"vision_config"`
}

// loadCLIPConfig reads projection dimensionality and input image size from
// the model directory, falling back to ViT-B defaults.
func loadCLIPConfig(modelDir string) (dim, imageSize int) {
	dim, imageSize = defaultProjectionDim, defaultImageSize

	data, err := os.ReadFile(filepath.Join(modelDir, "config.json"))
	if err != nil {
		return dim, imageSize
	}

	var cfg clipConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return dim, imageSize
	}

	if cfg.ProjectionDim > 0 {
		dim = cfg.ProjectionDim
	} else if cfg.VisionConfig.ProjectionDim > 0 {
		dim = cfg.VisionConfig.ProjectionDim
	}
	if cfg.VisionConfig.ImageSize > 0 {
		imageSize = cfg.VisionConfig.ImageSize
	}
	return dim, imageSize
}

// ImageSize returns the encoder's expected input edge length, read from the
// model directory. Usable before the encoder itself is constructed so the
// dataset transform can be bound first.
func ImageSize(modelDir string) int {
	_, size := loadCLIPConfig(modelDir)
	return size
}

// findVisualModel locates the ONNX visual encoder inside modelDir.
func findVisualModel(modelDir string, candidates []string) (string, error) {
	for _, name := range candidates {
		path := filepath.Join(modelDir, name)
		if _, err := os.Stat(path); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("encoder: no visual encoder found in %s (tried %v)", modelDir, candidates)
}
