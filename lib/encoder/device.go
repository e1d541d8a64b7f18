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

package encoder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Device identifies the compute device for inference.
type Device string

const (
	// DeviceAuto probes devices in priority order and picks the first
	// available.
	DeviceAuto Device = "auto"

	// DeviceCUDA uses an NVIDIA GPU through the CUDA execution provider.
	DeviceCUDA Device = "cuda"

	// DeviceCoreML uses Apple CoreML (macOS only).
	DeviceCoreML Device = "coreml"

	// DeviceCPU forces CPU inference.
	DeviceCPU Device = "cpu"
)

// ParseDevice validates a device string. Empty means auto.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return DeviceAuto, nil
	case "cuda", "gpu":
		return DeviceCUDA, nil
	case "coreml", "mps":
		return DeviceCoreML, nil
	case "cpu":
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("encoder: unknown device %q (valid: auto, cuda, coreml, cpu)", s)
	}
}

// devicePriority is the fixed auto-detection order: the first probe that
// reports available wins. CUDA deliberately outranks CoreML so a Linux box
// with an NVIDIA card never falls through to CPU.
var devicePriority = []Device{DeviceCUDA, DeviceCoreML, DeviceCPU}

var (
	detectOnce sync.Once
	detected   Device
)

// Detect returns the best available device, probing once and caching the
// result.
func Detect() Device {
	detectOnce.Do(func() {
		detected = DeviceCPU
		for _, d := range devicePriority {
			if deviceAvailable(d) {
				detected = d
				return
			}
		}
	})
	return detected
}

// Resolve applies the explicit device override, falling back to detection.
func Resolve(d Device) Device {
	if d == "" || d == DeviceAuto {
		return Detect()
	}
	return d
}

func deviceAvailable(d Device) bool {
	switch d {
	case DeviceCUDA:
		return cudaAvailable()
	case DeviceCoreML:
		return runtime.GOOS == "darwin"
	case DeviceCPU:
		return true
	default:
		return false
	}
}

// cudaAvailable probes for an NVIDIA GPU via nvidia-smi, falling back to
// scanning for the CUDA runtime library.
func cudaAvailable() bool {
	if smi, err := exec.LookPath("nvidia-smi"); err == nil {
		if err := exec.Command(smi, "--query-gpu=name", "--format=csv,noheader").Run(); err == nil {
			return true
		}
	}

	dirs := []string{
		"/usr/local/cuda/lib64",
		"/usr/lib/x86_64-linux-gnu",
		"/usr/lib64",
	}
	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		dirs = append(filepath.SplitList(ldPath), dirs...)
	}
	for _, dir := range dirs {
		if matches, _ := filepath.Glob(filepath.Join(dir, "libcudart.so*")); len(matches) > 0 {
			return true
		}
	}
	return false
}
