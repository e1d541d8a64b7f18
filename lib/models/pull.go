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

package models

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gomlx/go-huggingface/hub"
)

// PullOptions configures a model download.
type PullOptions struct {
	// ModelsDir is the local install root.
	ModelsDir string

	// HFToken authenticates against gated repos. Falls back to the HF_TOKEN
	// environment variable when empty.
	HFToken string

	// Quantized also downloads the *_quantized.onnx visual encoder.
	Quantized bool

	// Progress, when non-nil, is invoked once per downloaded file.
	Progress func(filename string, size int64)
}

// Pull downloads the CLIP visual encoder files for the named model from
// HuggingFace Hub into ModelsDir. Already-cached files are reused by the hub
// client.
func Pull(name string, opts PullOptions) (string, error) {
	repoID, err := Resolve(name)
	if err != nil {
		return "", err
	}

	token := opts.HFToken
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}

	repo := hub.New(repoID)
	if token != "" {
		repo = repo.WithAuth(token)
	}

	var files []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return "", fmt.Errorf("models: listing files in %s: %w", repoID, err)
		}
		if wantFile(fileName, opts.Quantized) {
			files = append(files, fileName)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("models: no CLIP visual encoder files found in %s", repoID)
	}

	modelDir := filepath.Join(opts.ModelsDir, filepath.FromSlash(repoID))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("models: creating %s: %w", modelDir, err)
	}

	for _, fileName := range files {
		localPath, err := repo.DownloadFile(fileName)
		if err != nil {
			return "", fmt.Errorf("models: downloading %s: %w", fileName, err)
		}

		// Flatten repo paths (onnx/vision_model.onnx -> vision_model.onnx).
		destPath := filepath.Join(modelDir, filepath.Base(fileName))
		if err := copyFile(localPath, destPath); err != nil {
			return "", fmt.Errorf("models: installing %s: %w", fileName, err)
		}

		if opts.Progress != nil {
			size := int64(0)
			if info, err := os.Stat(destPath); err == nil {
				size = info.Size()
			}
			opts.Progress(filepath.Base(fileName), size)
		}
	}

	return modelDir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
