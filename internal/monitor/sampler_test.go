package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockMonitor struct {
	name string
	data any
	err  error
}

func (m *mockMonitor) Name() string {
	return m.name
}

func (m *mockMonitor) Collect() (any, error) {
	return m.data, m.err
}

func TestSampler_State(t *testing.T) {
	monitors := []Monitor{
		&mockMonitor{name: "host", data: &HostState{CPUPercent: 50, MemoryPercent: 40, CPUCores: 4}},
		&mockMonitor{name: "process", data: &ProcessState{PID: 7, CPUPercent: 12, MemoryPercent: 3}},
		&mockMonitor{name: "disk", data: []DiskState{{Path: "/data", UsagePercent: 70}}},
	}

	s := NewSampler(monitors, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start sampler: %v", err)
	}
	defer func() { _ = s.Stop() }()

	state := s.State()
	if state.Host.CPUPercent != 50 {
		t.Errorf("expected host CPU 50, got %f", state.Host.CPUPercent)
	}
	if state.Process.PID != 7 {
		t.Errorf("expected pid 7, got %d", state.Process.PID)
	}
	if len(state.Disks) != 1 || state.Disks[0].Path != "/data" {
		t.Errorf("unexpected disks: %+v", state.Disks)
	}
	if state.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	mem, cpu, ok := s.ResourceUsage()
	if !ok {
		t.Fatal("expected resource usage after a process sample")
	}
	if mem != 3 || cpu != 12 {
		t.Errorf("expected mem 3 cpu 12, got mem %f cpu %f", mem, cpu)
	}
}

func TestSampler_ResourceUsageWithoutProcessSample(t *testing.T) {
	monitors := []Monitor{
		&mockMonitor{name: "process", err: errors.New("permission denied")},
		&mockMonitor{name: "host", data: &HostState{CPUPercent: 10}},
	}

	s := NewSampler(monitors, time.Second, testLogger())
	s.Collect()

	if _, _, ok := s.ResourceUsage(); ok {
		t.Error("expected no resource usage when the process monitor fails")
	}
	if s.State().Host.CPUPercent != 10 {
		t.Error("host state should still be collected")
	}
}

func TestSampler_StateClone(t *testing.T) {
	state := &State{Disks: []DiskState{{Path: "/"}}}

	clone := state.Clone()
	state.Disks[0].Path = "/modified"

	if clone.Disks[0].Path != "/" {
		t.Errorf("clone disks modified: %s", clone.Disks[0].Path)
	}
}

func TestSampler_StopIdempotent(t *testing.T) {
	s := NewSampler(nil, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	// Multiple Stop calls should not panic
	for i := 0; i < 3; i++ {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop() returned error on call %d: %v", i+1, err)
		}
	}
}

func TestSampler_IntegrationWithRealMonitors(t *testing.T) {
	monitors := DefaultMonitors(t.TempDir(), testLogger())

	s := NewSampler(monitors, 100*time.Millisecond, testLogger())
	s.Collect()

	state := s.State()
	if state.Host.MemoryTotal == 0 {
		t.Error("memory total should not be zero")
	}
	if state.Host.CPUPercent < 0 || state.Host.CPUPercent > 100 {
		t.Errorf("invalid CPU usage: %f", state.Host.CPUPercent)
	}
	if state.Process.PID != int32(os.Getpid()) {
		t.Errorf("expected pid %d, got %d", os.Getpid(), state.Process.PID)
	}
	if len(state.Disks) != 1 {
		t.Errorf("expected one disk entry, got %d", len(state.Disks))
	}
}

func TestDiskMonitor_NonExistentPath(t *testing.T) {
	m := NewDiskMonitor("/nonexistent/path/that/does/not/exist")

	data, err := m.Collect()
	if err != nil {
		t.Fatalf("collect should not fail: %v", err)
	}

	disks, ok := data.([]DiskState)
	if !ok {
		t.Fatalf("expected []DiskState, got %T", data)
	}
	if len(disks) != 0 {
		t.Errorf("expected no entries for non-existent path, got %d", len(disks))
	}
}
