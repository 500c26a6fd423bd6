package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GPUProbe reports the CUDA devices visible to nvidia-smi.
type GPUProbe struct {
	Detected bool
	Names    []string
	Memory   []string
}

// ProbeGPU queries nvidia-smi for device names and total memory. A missing
// binary or failed query yields an undetected probe.
func ProbeGPU(ctx context.Context) GPUProbe {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return GPUProbe{}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader")
	output, err := cmd.Output()
	if err != nil {
		return GPUProbe{}
	}
	return parseGPUList(string(output))
}

func parseGPUList(text string) GPUProbe {
	var probe GPUProbe
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, memory, _ := strings.Cut(line, ",")
		probe.Names = append(probe.Names, strings.TrimSpace(name))
		probe.Memory = append(probe.Memory, strings.TrimSpace(memory))
	}
	probe.Detected = len(probe.Names) > 0
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p GPUProbe) Detail() string {
	if !p.Detected {
		return "No CUDA device detected (CPU inference)"
	}
	parts := make([]string, 0, len(p.Names))
	for i, name := range p.Names {
		if i < len(p.Memory) && p.Memory[i] != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, p.Memory[i]))
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}
