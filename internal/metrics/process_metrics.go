package metrics

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessMetrics holds CPU and memory metrics for a single process
type ProcessMetrics struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

var (
	targetCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of processes matching the target pattern.",
		}, []string{"target", "pid"},
	)
	targetRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of processes matching the target pattern.",
		}, []string{"target", "pid"},
	)
	targetThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "target",
			Name:      "num_threads",
			Help:      "Number of threads of processes matching the target pattern.",
		}, []string{"target", "pid"},
	)
)

// Sample retrieves CPU and memory metrics for a single process
func Sample(pid int32, timestamp time.Time) (ProcessMetrics, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ProcessMetrics{}, fmt.Errorf("failed to create process handle: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
		cpuPercent = 0
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ProcessMetrics{}, fmt.Errorf("failed to get memory info: %w", err)
	}

	numThreads, err := proc.NumThreads()
	if err != nil {
		slog.Debug("Failed to get thread count", "pid", pid, "error", err)
		numThreads = 0
	}

	return ProcessMetrics{
		PID:        pid,
		CPUPercent: cpuPercent,
		MemoryRSS:  memInfo.RSS,
		MemoryVMS:  memInfo.VMS,
		NumThreads: numThreads,
		Timestamp:  timestamp,
	}, nil
}

// CollectTarget samples every PID matching the target and replaces the
// per-PID gauges for it. PIDs that vanished are dropped from the series.
func CollectTarget(target string, pids []int) []ProcessMetrics {
	now := time.Now()
	out := make([]ProcessMetrics, 0, len(pids))
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		m, err := Sample(int32(pid), now)
		if err != nil {
			slog.Debug("Failed to collect metrics for process", "target", target, "pid", pid, "error", err)
			continue
		}
		out = append(out, m)
	}
	if !regOK.Load() {
		return out
	}

	labels := prometheus.Labels{"target": target}
	targetCPU.DeletePartialMatch(labels)
	targetRSS.DeletePartialMatch(labels)
	targetThreads.DeletePartialMatch(labels)
	for _, m := range out {
		pid := strconv.Itoa(int(m.PID))
		targetCPU.WithLabelValues(target, pid).Set(m.CPUPercent)
		targetRSS.WithLabelValues(target, pid).Set(float64(m.MemoryRSS))
		targetThreads.WithLabelValues(target, pid).Set(float64(m.NumThreads))
	}
	return out
}
