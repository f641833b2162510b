// Package hardware probes the host for training eligibility.
package hardware

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// GPUOverrideEnv forces the GPU probe: "1" reports a GPU present, "0"
// reports none regardless of what the host exposes.
const GPUOverrideEnv = "TRAINGUARD_FORCE_GPU"

var nvidiaProbePaths = []string{
	"/proc/driver/nvidia/version",
	"/dev/nvidia0",
	"/dev/nvidiactl",
}

// HasGPU reports whether an NVIDIA accelerator is visible to this process.
func HasGPU() bool {
	switch os.Getenv(GPUOverrideEnv) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	if v := os.Getenv("NVIDIA_VISIBLE_DEVICES"); v != "" && v != "void" && v != "none" {
		return true
	}
	for _, p := range nvidiaProbePaths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Info describes the host a run executes on.
type Info struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	CPUModel      string `json:"cpu_model"`
	PhysicalCores int    `json:"physical_cores"`
	LogicalCores  int    `json:"logical_cores"`
	MemoryTotal   uint64 `json:"memory_total"`
	GPUPresent    bool   `json:"gpu_present"`
}

// Probe collects host facts for run metadata and eligibility checks.
func Probe(ctx context.Context) (Info, error) {
	info := Info{
		CPUModel:   strings.TrimSpace(cpuid.CPU.BrandName),
		GPUPresent: HasGPU(),
	}

	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("hardware: host info: %w", err)
	}
	info.Hostname = h.Hostname
	info.OS = h.OS
	info.Platform = h.Platform
	info.KernelVersion = h.KernelVersion

	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return info, fmt.Errorf("hardware: physical cores: %w", err)
	}
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return info, fmt.Errorf("hardware: logical cores: %w", err)
	}
	info.PhysicalCores = physical
	info.LogicalCores = logical

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("hardware: memory: %w", err)
	}
	info.MemoryTotal = vm.Total

	return info, nil
}
