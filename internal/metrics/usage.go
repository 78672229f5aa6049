package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessUsage is a point-in-time resource reading for an engine process.
type ProcessUsage struct {
	CPUPercent float64 `json:"cpuPercent" doc:"Average CPU use since the process started, 100 = one core"`
	RSSBytes   uint64  `json:"rssBytes" doc:"Resident memory"`
	Threads    int32   `json:"threads"`
}

// GetProcessUsage reads CPU, memory and thread counts for pid.
func GetProcessUsage(ctx context.Context, pid int) (*ProcessUsage, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu for %d: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory for %d: %w", pid, err)
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("threads for %d: %w", pid, err)
	}

	return &ProcessUsage{CPUPercent: cpu, RSSBytes: mem.RSS, Threads: threads}, nil
}
