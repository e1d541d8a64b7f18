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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownNames(t *testing.T) {
	for name, want := range map[string]string{
		"ViT-B/32": "Xenova/clip-vit-base-patch32",
		"ViT-B/16": "Xenova/clip-vit-base-patch16",
		"ViT-L/14": "Xenova/clip-vit-large-patch14",
	} {
		repo, err := Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, want, repo)
	}
}

func TestResolve_LiteralRepoID(t *testing.T) {
	repo, err := Resolve("laion/CLIP-ViT-H-14-onnx")
	require.NoError(t, err)
	assert.Equal(t, "laion/CLIP-ViT-H-14-onnx", repo)
}

func TestResolve_UnknownVariant(t *testing.T) {
	_, err := Resolve("ViT-G/14")
	assert.Error(t, err)
}

func TestDir(t *testing.T) {
	dir, err := Dir("/models", "ViT-B/16")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/models", "Xenova", "clip-vit-base-patch16"), dir)
}

func TestWantFile(t *testing.T) {
	assert.True(t, wantFile("onnx/vision_model.onnx", false))
	assert.True(t, wantFile("visual_model.onnx", false))
	assert.True(t, wantFile("config.json", false))
	assert.True(t, wantFile("preprocessor_config.json", false))
	assert.False(t, wantFile("onnx/text_model.onnx", false))
	assert.False(t, wantFile("tokenizer.json", false))
	assert.False(t, wantFile("onnx/vision_model_quantized.onnx", false))
	assert.True(t, wantFile("onnx/vision_model_quantized.onnx", true))
}

func TestVisualModelCandidates(t *testing.T) {
	assert.Equal(t,
		[]string{"vision_model.onnx", "visual_model.onnx"},
		VisualModelCandidates(false))
	assert.Equal(t,
		[]string{"vision_model_quantized.onnx", "visual_model_quantized.onnx", "vision_model.onnx", "visual_model.onnx"},
		VisualModelCandidates(true))
}

func TestListLocal(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "Xenova", "clip-vit-base-patch16")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "vision_model.onnx"), make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "config.json"), []byte("{}"), 0o644))

	// A directory without a visual encoder must be skipped.
	junkDir := filepath.Join(root, "someone", "not-a-clip-model")
	require.NoError(t, os.MkdirAll(junkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(junkDir, "readme.md"), []byte("x"), 0o644))

	infos, err := ListLocal(root)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Xenova/clip-vit-base-patch16", infos[0].Repo)
	assert.Equal(t, int64(1026), infos[0].Size)
	assert.False(t, infos[0].Quantized)
}

func TestListLocal_MissingDir(t *testing.T) {
	infos, err := ListLocal(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "2.5 MB", FormatBytes(2621440))
	assert.Equal(t, "1.0 GB", FormatBytes(1073741824))
}
