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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simulacralab/sacembed/lib/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally installed CLIP encoders",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	infos, err := models.ListLocal(modelsDir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Printf("No models installed in %s (run: sacembed pull \"ViT-B/16\")\n", modelsDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tSIZE\tQUANTIZED")
	for _, info := range infos {
		quantized := "no"
		if info.Quantized {
			quantized = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Repo, models.FormatBytes(info.Size), quantized)
	}
	return w.Flush()
}
