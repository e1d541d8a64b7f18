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

//go:build onnx && ORT

package encoder

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"

	khugot "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/backends"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/knights-analytics/hugot/util/imageutil"
	"go.uber.org/zap"

	"github.com/simulacralab/sacembed/lib/models"
)

// CLIP is a frozen visual encoder backed by an ONNX Runtime session. It is
// inference-only: no gradients, no parameter updates, no training step.
//
// Build with: CGO_ENABLED=1 go build -tags="onnx,ORT"
type CLIP struct {
	session  *khugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	model    string
	dim      int
	device   Device
	logger   *zap.Logger
}

// New loads the visual encoder from cfg.ModelDir and prepares an inference
// pipeline on the resolved device.
func New(cfg Config, logger *zap.Logger) (*CLIP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("%w: model directory is required", ErrEncode)
	}

	onnxFile, err := findVisualModel(cfg.ModelDir, models.VisualModelCandidates(cfg.Quantized))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	dim, imageSize := loadCLIPConfig(cfg.ModelDir)
	device := Resolve(cfg.Device)

	logger.Info("Loading CLIP visual encoder",
		zap.String("model", cfg.Model),
		zap.String("modelDir", cfg.ModelDir),
		zap.String("onnxFile", onnxFile),
		zap.String("device", string(device)),
		zap.Int("projectionDim", dim),
		zap.Int("imageSize", imageSize))

	session, err := newSession(device)
	if err != nil {
		return nil, fmt.Errorf("%w: creating session: %v", ErrEncode, err)
	}

	// The dataset transform already resizes and crops; the pipeline steps
	// are no-ops on pre-sized inputs but keep the encoder usable on raw
	// images. Embeddings stay unnormalized like the reference encode_image
	// output.
	pipelineCfg := khugot.FeatureExtractionConfig{
		ModelPath:    cfg.ModelDir,
		Name:         fmt.Sprintf("%s:visual:%s", cfg.ModelDir, onnxFile),
		OnnxFilename: onnxFile,
		Options: []backends.PipelineOption[*pipelines.FeatureExtractionPipeline]{
			pipelines.WithImageMode(),
			pipelines.WithPreprocessSteps[*pipelines.FeatureExtractionPipeline](
				imageutil.ResizeStep(imageSize),
				imageutil.CenterCropStep(imageSize, imageSize),
			),
			pipelines.WithNormalizationSteps[*pipelines.FeatureExtractionPipeline](
				imageutil.RescaleStep(),
				imageutil.CLIPPixelNormalizationStep(),
			),
			pipelines.WithNCHWFormat[*pipelines.FeatureExtractionPipeline](),
		},
	}

	pipeline, err := khugot.NewPipeline(session, pipelineCfg)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("%w: creating visual pipeline: %v", ErrEncode, err)
	}

	return &CLIP{
		session:  session,
		pipeline: pipeline,
		model:    cfg.Model,
		dim:      dim,
		device:   device,
		logger:   logger,
	}, nil
}

// newSession creates an ONNX Runtime session configured for the device.
func newSession(device Device) (*khugot.Session, error) {
	var opts []options.WithOption
	if libPath := onnxLibraryPath(); libPath != "" {
		opts = append(opts, options.WithOnnxLibraryPath(libPath))
	}
	switch device {
	case DeviceCUDA:
		opts = append(opts, options.WithCuda(nil))
	case DeviceCoreML:
		opts = append(opts, options.WithCoreML(nil))
	}
	return khugot.NewORTSession(opts...)
}

// onnxLibraryPath finds libonnxruntime from ONNXRUNTIME_ROOT or
// LD_LIBRARY_PATH, returning "" to let hugot use its default lookup.
func onnxLibraryPath() string {
	libName := "libonnxruntime.so"
	if runtime.GOOS == "darwin" {
		libName = "libonnxruntime.dylib"
	}

	if root := os.Getenv("ONNXRUNTIME_ROOT"); root != "" {
		platformDir := filepath.Join(root, runtime.GOOS+"-"+runtime.GOARCH, "lib")
		if _, err := os.Stat(filepath.Join(platformDir, libName)); err == nil {
			return platformDir
		}
		directDir := filepath.Join(root, "lib")
		if _, err := os.Stat(filepath.Join(directDir, libName)); err == nil {
			return directDir
		}
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			if _, err := os.Stat(filepath.Join(dir, libName)); err == nil {
				return dir
			}
		}
	}

	return ""
}

// Encode maps a batch of preprocessed images to embedding vectors. Pure
// function of its input; any runtime failure aborts the run.
func (c *CLIP) Encode(ctx context.Context, images []image.Image) ([][]float32, error) {
	if len(images) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output, err := c.pipeline.RunWithImages(images)
	if err != nil {
		return nil, fmt.Errorf("%w: running visual pipeline: %v", ErrEncode, err)
	}
	if len(output.Embeddings) != len(images) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d images", ErrEncode, len(output.Embeddings), len(images))
	}

	return output.Embeddings, nil
}

// Identifier returns the encoder name recorded in the output bundle.
func (c *CLIP) Identifier() string {
	return c.model
}

// Dim returns the embedding dimensionality.
func (c *CLIP) Dim() int {
	return c.dim
}

// Device returns the resolved compute device.
func (c *CLIP) Device() Device {
	return c.device
}

// Close destroys the inference session.
func (c *CLIP) Close() error {
	return c.session.Destroy()
}
