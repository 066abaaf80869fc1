package sysinfo

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// probeTimeout bounds each external hardware probe
const probeTimeout = 3 * time.Second

// GPU describes one detected graphics device
type GPU struct {
	Name        string `json:"name"`
	MemoryBytes uint64 `json:"memory_bytes,omitempty"`
}

// Info describes the host the service runs on
type Info struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	CPUCores     int    `json:"cpu_cores"`
	GoVersion    string `json:"go_version"`
	MemoryBytes  uint64 `json:"memory_bytes,omitempty"`
	GPUs         []GPU  `json:"gpus"`
	GPUAvailable bool   `json:"gpu_available"`
}

// Recommendation is a suggested analysis window duration for this host
type Recommendation struct {
	WindowSeconds float64 `json:"window_seconds"`
	Reason        string  `json:"reason"`
}

// Collect inventories the host. Memory and GPU detection shell out to
// platform tools and tolerate their absence.
func Collect(ctx context.Context) Info {
	info := Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}

	info.MemoryBytes = totalMemory(ctx)
	info.GPUs = detectGPUs(ctx)
	info.GPUAvailable = len(info.GPUs) > 0

	return info
}

// totalMemory reports the host's physical memory in bytes, or zero when the
// platform probe is unavailable.
func totalMemory(ctx context.Context) uint64 {
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize").Output()
		if err != nil {
			return 0
		}
		bytes, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
		if err != nil {
			return 0
		}
		return bytes
	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return 0
		}
		return parseMemInfo(string(data))
	default:
		return 0
	}
}

// parseMemInfo extracts MemTotal from /proc/meminfo contents. The kernel
// reports it in kibibytes.
func parseMemInfo(data string) uint64 {
	for _, line := range strings.Split(data, "\n") {
		value, ok := strings.CutPrefix(line, "MemTotal:")
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// detectGPUs probes for graphics devices. An empty result means none were
// found or the probe tool is not installed.
func detectGPUs(ctx context.Context) []GPU {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	switch runtime.GOOS {
	case "darwin":
		out, err := exec.CommandContext(ctx, "system_profiler", "SPDisplaysDataType").Output()
		if err != nil {
			return nil
		}
		return parseDisplayProfile(string(out))
	default:
		out, err := exec.CommandContext(ctx, "nvidia-smi",
			"--query-gpu=name,memory.total", "--format=csv,noheader").Output()
		if err != nil {
			return nil
		}
		return parseNvidiaSMI(string(out))
	}
}

// parseNvidiaSMI parses "name, memory" CSV lines, one GPU per line. Memory
// comes back as "24576 MiB"; an unparseable figure leaves the field zero.
func parseNvidiaSMI(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, memory, _ := strings.Cut(line, ",")
		gpus = append(gpus, GPU{
			Name:        strings.TrimSpace(name),
			MemoryBytes: parseMemoryFigure(memory),
		})
	}
	return gpus
}

// parseMemoryFigure converts figures like "24576 MiB" or "8 GB" to bytes
func parseMemoryFigure(s string) uint64 {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0
	}
	amount, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || amount <= 0 {
		return 0
	}

	unit := ""
	if len(fields) > 1 {
		unit = strings.ToLower(fields[1])
	}
	switch unit {
	case "gib", "gb":
		return uint64(amount * 1024 * 1024 * 1024)
	case "mib", "mb":
		return uint64(amount * 1024 * 1024)
	default:
		return uint64(amount)
	}
}

// parseDisplayProfile extracts every chipset model from system_profiler
// output
func parseDisplayProfile(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "Chipset Model:"); ok {
			gpus = append(gpus, GPU{Name: strings.TrimSpace(name)})
		}
	}
	return gpus
}

// Recommend derives an analysis window duration from the host inventory.
// Slower hosts get longer windows so classification requests stay spaced
// out; a GPU host can afford the shortest window.
func Recommend(info Info) Recommendation {
	if info.GPUAvailable {
		return Recommendation{
			WindowSeconds: 2,
			Reason:        "GPU detected, short windows keep the display responsive",
		}
	}

	switch {
	case info.CPUCores <= 4:
		return Recommendation{
			WindowSeconds: 10,
			Reason:        "few CPU cores, long windows avoid overlapping model requests",
		}
	case info.CPUCores <= 8:
		return Recommendation{
			WindowSeconds: 5,
			Reason:        "moderate CPU, medium windows balance latency and load",
		}
	default:
		return Recommendation{
			WindowSeconds: 2,
			Reason:        "many CPU cores, short windows keep the display responsive",
		}
	}
}
