package util

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Version is the application version.
const Version = "1.0.0"

const mb = 1024 * 1024

// HostInfo describes the machine sessions are replayed from. It is attached
// to telemetry so gateway behavior can be correlated with the origin host.
type HostInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	Architecture  string `json:"architecture"`
	CPUModel      string `json:"cpu_model"`
	CPUCores      int    `json:"cpu_cores"`
	TotalMemoryMB uint64 `json:"total_memory_mb"`
	GoVersion     string `json:"go_version"`
	Version       string `json:"version"`
}

// GetHostInfo gathers host information. Fields gopsutil cannot read on the
// current platform are left empty.
func GetHostInfo() HostInfo {
	info := HostInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
		Version:      Version,
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if h, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
	}
	if c, err := cpu.Info(); err == nil && len(c) > 0 {
		info.CPUModel = c[0].ModelName
	}
	if m, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryMB = m.Total / mb
	}
	return info
}

// Usage is a resource snapshot of the running process and its host.
type Usage struct {
	PID               int32   `json:"pid"`
	Uptime            string  `json:"uptime"`
	Goroutines        int     `json:"goroutines"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessRSSMB      uint64  `json:"process_rss_mb"`
	HeapAllocMB       uint64  `json:"heap_alloc_mb"`
	HostCPUPercent    float64 `json:"host_cpu_percent"`
	HostMemoryPercent float64 `json:"host_memory_percent"`
	HostAvailableMB   uint64  `json:"host_available_mb"`
}

// GetUsage samples resource usage. Process figures come from gopsutil and
// the Go runtime; host figures are best effort.
func GetUsage() (*Usage, error) {
	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	u := &Usage{
		PID:         pid,
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: ms.HeapAlloc / mb,
	}

	if created, err := proc.CreateTime(); err == nil {
		u.Uptime = time.Since(time.UnixMilli(created)).Round(time.Second).String()
	}
	if pct, err := proc.CPUPercent(); err == nil {
		u.ProcessCPUPercent = pct
	}
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		u.ProcessRSSMB = info.RSS / mb
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		u.HostCPUPercent = pct[0]
	}
	if m, err := mem.VirtualMemory(); err == nil {
		u.HostMemoryPercent = m.UsedPercent
		u.HostAvailableMB = m.Available / mb
	}
	return u, nil
}
