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
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simulacralab/sacembed/lib/bundle"
	"github.com/simulacralab/sacembed/lib/models"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle>",
	Short: "Summarize an embedding bundle",
	Long: `Read an embedding bundle, verify its checksum, and print the encoder
identifier, row and dimension counts, and rating statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	b, err := bundle.ReadFile(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "File\t%s (%s)\n", path, models.FormatBytes(fi.Size()))
	fmt.Fprintf(w, "Model\t%s\n", b.Model)
	fmt.Fprintf(w, "Rows\t%d\n", b.Len())
	fmt.Fprintf(w, "Dim\t%d\n", b.Dim())
	if b.Len() > 0 {
		lo, hi, mean := ratingStats(b.Ratings)
		fmt.Fprintf(w, "Ratings\tmin %.2f / mean %.2f / max %.2f\n", lo, mean, hi)
	}
	return w.Flush()
}

func ratingStats(ratings []float32) (lo, hi, mean float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, r := range ratings {
		v := float64(r)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	return lo, hi, sum / float64(len(ratings))
}
