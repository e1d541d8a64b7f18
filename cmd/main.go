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

// Command sacembed precomputes CLIP embeddings for Simulacra Aesthetic
// Captions.
//
// It reads image records and human ratings from the SQLite rating store,
// runs each image through a frozen CLIP visual encoder, and writes all
// embeddings plus mean ratings to a single bundle for training aesthetic
// prediction heads.
//
// Usage:
//
//	sacembed compute --db sac.sqlite --images-dir images --output embeds.sacb
//	sacembed pull "ViT-B/16"       # Download the ONNX encoder
//	sacembed list                  # List local encoders
//	sacembed inspect embeds.sacb   # Summarize a bundle
package main

import (
	"github.com/simulacralab/sacembed/cmd/cmd"
)

// version is set by the release pipeline via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
