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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/simulacralab/sacembed/lib/encoder"
	"github.com/simulacralab/sacembed/lib/extract"
	"github.com/simulacralab/sacembed/lib/loader"
	"github.com/simulacralab/sacembed/lib/logging"
	"github.com/simulacralab/sacembed/lib/models"
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute CLIP embeddings for every rated image",
	Long: `Read every rated image from the SQLite store, run it through the
frozen CLIP visual encoder, and write all embeddings plus mean ratings to a
single output bundle.

Examples:
  # Default ViT-B/16 encoder, auto-detected device
  sacembed compute --db sac.sqlite --images-dir images --output embeds.sacb

  # Larger encoder on a specific device, more preprocessing workers
  sacembed compute --clip-model ViT-L/14 --device cuda --num-workers 16 \
    --db sac.sqlite --images-dir images --output embeds.sacb`,
	RunE: runCompute,
}

func init() {
	rootCmd.AddCommand(computeCmd)

	computeCmd.Flags().Int("batch-size", 10, "samples per encoder batch")
	computeCmd.Flags().String("clip-model", "ViT-B/16", "the CLIP model")
	computeCmd.Flags().String("db", "", "the rating database location")
	computeCmd.Flags().String("device", "", "compute device (auto, cuda, coreml, cpu)")
	computeCmd.Flags().String("images-dir", "", "the dataset images directory")
	computeCmd.Flags().Int("num-workers", 8, "the number of preprocessing workers")
	computeCmd.Flags().String("output", "", "the output bundle file")
	computeCmd.Flags().String("start-method", "spawn", "worker start method (fork, forkserver, spawn)")
	computeCmd.Flags().Bool("quantized", false, "use the quantized encoder graph when present")
	_ = computeCmd.MarkFlagRequired("db")
	_ = computeCmd.MarkFlagRequired("images-dir")
	_ = computeCmd.MarkFlagRequired("output")

	mustBindPFlag("compute.batch_size", computeCmd.Flags().Lookup("batch-size"))
	mustBindPFlag("compute.clip_model", computeCmd.Flags().Lookup("clip-model"))
	mustBindPFlag("compute.device", computeCmd.Flags().Lookup("device"))
	mustBindPFlag("compute.num_workers", computeCmd.Flags().Lookup("num-workers"))
	mustBindPFlag("compute.start_method", computeCmd.Flags().Lookup("start-method"))
	mustBindPFlag("compute.quantized", computeCmd.Flags().Lookup("quantized"))
}

func runCompute(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.NewLogger(&logging.Config{
		Level: viper.GetString("log.level"),
		Style: viper.GetString("log.style"),
	})
	defer func() {
		_ = logger.Sync()
	}()

	db, _ := cmd.Flags().GetString("db")
	imagesDir, _ := cmd.Flags().GetString("images-dir")
	output, _ := cmd.Flags().GetString("output")
	modelName := viper.GetString("compute.clip_model")

	device, err := encoder.ParseDevice(viper.GetString("compute.device"))
	if err != nil {
		return err
	}
	startMode, err := loader.ParseStartMode(viper.GetString("compute.start_method"))
	if err != nil {
		return err
	}

	modelDir, err := models.Dir(viper.GetString("models_dir"), modelName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(modelDir); err != nil {
		return fmt.Errorf("model %q is not installed (run: sacembed pull %q): %w", modelName, modelName, err)
	}

	resolved := encoder.Resolve(device)
	logger.Info("Using device", zap.String("device", string(resolved)))

	enc, err := encoder.New(encoder.Config{
		Model:     modelName,
		ModelDir:  modelDir,
		Device:    resolved,
		Quantized: viper.GetBool("compute.quantized"),
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = enc.Close()
	}()

	return extract.Run(ctx, logger, extract.Config{
		DB:         db,
		ImagesDir:  imagesDir,
		Output:     output,
		Transform:  encoder.Preprocess(encoder.ImageSize(modelDir)),
		BatchSize:  viper.GetInt("compute.batch_size"),
		NumWorkers: viper.GetInt("compute.num_workers"),
		StartMode:  startMode,
		Progress:   true,
	}, enc)
}
