package monitor

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessMonitor samples the current process.
// CPU percent is measured between consecutive collections; the first one reports 0.
type ProcessMonitor struct {
	mu   sync.Mutex
	proc *process.Process
}

func NewProcessMonitor() (*ProcessMonitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessMonitor{proc: p}, nil
}

func (m *ProcessMonitor) Name() string {
	return "process"
}

func (m *ProcessMonitor) Collect() (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpuPct, err := m.proc.Percent(0)
	if err != nil {
		return nil, err
	}

	memPct, err := m.proc.MemoryPercent()
	if err != nil {
		return nil, err
	}

	state := &ProcessState{
		PID:           m.proc.Pid,
		CPUPercent:    cpuPct,
		MemoryPercent: float64(memPct),
		Goroutines:    runtime.NumGoroutine(),
	}

	// Not every platform reports these
	if info, err := m.proc.MemoryInfo(); err == nil {
		state.RSSBytes = info.RSS
	}
	if threads, err := m.proc.NumThreads(); err == nil {
		state.Threads = threads
	}

	return state, nil
}
