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

// Package models maps CLIP model names to ONNX export repositories on
// HuggingFace Hub and manages the local model directory.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// clipRepos maps the classic OpenAI CLIP variant names to their ONNX
// exports. Names not in this table are treated as literal HuggingFace repo
// IDs (owner/name).
var clipRepos = map[string]string{
	"ViT-B/32": "Xenova/clip-vit-base-patch32",
	"ViT-B/16": "Xenova/clip-vit-base-patch16",
	"ViT-L/14": "Xenova/clip-vit-large-patch14",
}

// Resolve returns the HuggingFace repo ID for a model name.
func Resolve(name string) (string, error) {
	if repo, ok := clipRepos[name]; ok {
		return repo, nil
	}
	if strings.Count(name, "/") == 1 && !strings.HasPrefix(name, "ViT") {
		return name, nil
	}
	known := make([]string, 0, len(clipRepos))
	for k := range clipRepos {
		known = append(known, k)
	}
	return "", fmt.Errorf("models: unknown model %q (known: %s, or pass an owner/name HuggingFace repo)",
		name, strings.Join(known, ", "))
}

// Dir returns the local directory a model is installed to:
// modelsDir/<owner>/<name>.
func Dir(modelsDir, name string) (string, error) {
	repo, err := Resolve(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(modelsDir, filepath.FromSlash(repo)), nil
}

// visualModelFiles are the recognized visual encoder filenames, in lookup
// order. Xenova exports use vision_model.onnx; older conversions use
// visual_model.onnx.
var visualModelFiles = []string{"vision_model.onnx", "visual_model.onnx"}

// VisualModelCandidates returns the ONNX filenames to probe for the visual
// encoder, quantized variants first when requested.
func VisualModelCandidates(quantized bool) []string {
	var out []string
	if quantized {
		for _, f := range visualModelFiles {
			out = append(out, strings.TrimSuffix(f, ".onnx")+"_quantized.onnx")
		}
	}
	return append(out, visualModelFiles...)
}

// wantFile reports whether a repo file is part of a CLIP visual-encoder
// install: the visual ONNX graph plus its JSON sidecars. Text encoder files
// are skipped; this tool never embeds text.
func wantFile(name string, quantized bool) bool {
	base := filepath.Base(name)
	switch base {
	case "config.json", "preprocessor_config.json":
		return true
	}
	for _, candidate := range VisualModelCandidates(quantized) {
		if base == candidate {
			return true
		}
	}
	return false
}
