package monitor

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

type HostMonitor struct{}

func NewHostMonitor() *HostMonitor {
	return &HostMonitor{}
}

func (m *HostMonitor) Name() string {
	return "host"
}

func (m *HostMonitor) Collect() (any, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return nil, err
	}
	var overall float64
	if len(percentages) > 0 {
		overall = percentages[0]
	}

	cores, err := cpu.Counts(true)
	if err != nil {
		return nil, err
	}

	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	return &HostState{
		CPUPercent:    overall,
		MemoryPercent: v.UsedPercent,
		MemoryUsed:    v.Used,
		MemoryTotal:   v.Total,
		CPUCores:      cores,
	}, nil
}
