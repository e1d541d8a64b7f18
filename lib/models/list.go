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
	"os"
	"path/filepath"
	"strings"
)

// Info describes one locally installed model.
type Info struct {
	Repo      string // owner/name
	Size      int64  // total bytes on disk
	Quantized bool   // a *_quantized.onnx visual encoder is present
}

// ListLocal scans modelsDir (laid out as owner/name directories) and returns
// every install that contains a visual encoder.
func ListLocal(modelsDir string) ([]Info, error) {
	owners, err := os.ReadDir(modelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("models: reading %s: %w", modelsDir, err)
	}

	var infos []Info
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(modelsDir, owner.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			dir := filepath.Join(modelsDir, owner.Name(), name.Name())
			info, ok := inspectDir(dir)
			if !ok {
				continue
			}
			info.Repo = owner.Name() + "/" + name.Name()
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func inspectDir(dir string) (Info, bool) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return Info{}, false
	}

	var info Info
	hasVisual := false
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if fi, err := f.Info(); err == nil {
			info.Size += fi.Size()
		}
		base := f.Name()
		for _, candidate := range visualModelFiles {
			if base == candidate {
				hasVisual = true
			}
		}
		if strings.HasSuffix(base, "_quantized.onnx") {
			info.Quantized = true
			hasVisual = true
		}
	}
	return info, hasVisual
}

// FormatBytes renders a byte count as a human-readable string.
func FormatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
