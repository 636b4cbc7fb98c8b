// Package monitor samples the resource usage of the quorum process and its host.
package monitor

import "time"

// Monitor collects one part of the host state.
type Monitor interface {
	Name() string
	Collect() (any, error)
}

// HostState is the machine-wide CPU and memory picture.
type HostState struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used_bytes"`
	MemoryTotal   uint64  `json:"memory_total_bytes"`
	CPUCores      int     `json:"cpu_cores"`
}

// ProcessState describes the current process.
type ProcessState struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	Threads       int32   `json:"threads"`
	Goroutines    int     `json:"goroutines"`
}

type DiskState struct {
	Path         string  `json:"path"`
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// State is the latest sample of every monitor.
type State struct {
	Host      HostState    `json:"host"`
	Process   ProcessState `json:"process"`
	Disks     []DiskState  `json:"disks,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *State) Clone() *State {
	clone := *s
	clone.Disks = append([]DiskState(nil), s.Disks...)
	return &clone
}
