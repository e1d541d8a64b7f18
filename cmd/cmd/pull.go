// Copyright 2025 The sacembed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simulacralab/sacembed/lib/models"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model-name> [model-name...]",
	Short: "Download ONNX CLIP encoder(s) from HuggingFace",
	Long: `Download the visual encoder files for one or more CLIP models into
the local models directory.

Model names are the classic OpenAI CLIP variants (ViT-B/32, ViT-B/16,
ViT-L/14) or any owner/name HuggingFace repo containing an ONNX CLIP export.

Examples:
  # Pull the default encoder
  sacembed pull "ViT-B/16"

  # Pull the quantized variant as well
  sacembed pull --quantized "ViT-L/14"

  # Pull an arbitrary ONNX CLIP export
  sacembed pull Xenova/clip-vit-base-patch32`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
	pullCmd.Flags().Bool("quantized", false, "also download the quantized encoder graph")
}

func runPull(cmd *cobra.Command, args []string) error {
	hfToken, _ := cmd.Flags().GetString("hf-token")
	quantized, _ := cmd.Flags().GetBool("quantized")

	for _, name := range args {
		fmt.Printf("Pulling %s...\n", name)

		dir, err := models.Pull(name, models.PullOptions{
			ModelsDir: modelsDir,
			HFToken:   hfToken,
			Quantized: quantized,
			Progress: func(filename string, size int64) {
				fmt.Printf("  %s (%s)\n", filename, models.FormatBytes(size))
			},
		})
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", name, err)
		}

		fmt.Printf("✓ Model pulled successfully to %s\n", dir)
	}
	return nil
}
