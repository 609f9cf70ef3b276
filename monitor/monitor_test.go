package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMonitor() *ResourceMonitor {
	rm := New(Options{HighWatermark: 0.8, MaxConcurrency: 10})
	rm.readCPU = func() (uint64, error) { return 0, nil }
	rm.readMem = func() (uint64, error) { return 0, nil }
	rm.readMemLimit = func() (uint64, error) { return 1 << 30, nil }
	return rm
}

func TestRecommendScalesWithUtilization(t *testing.T) {
	rm := newTestMonitor()

	cases := []struct {
		util     float64
		expected int
	}{
		{0.0, 10},
		{0.4, 5},
		{0.79, 1},
		{0.8, 1},
		{0.95, 1},
	}
	for _, c := range cases {
		got := rm.recommend(10, ResourceSnapshot{CPUUtilization: c.util})
		assert.Equal(t, c.expected, got, "util=%v", c.util)
	}
}

func TestRecommendUsesWorstOfCPUAndMemory(t *testing.T) {
	rm := newTestMonitor()
	got := rm.recommend(10, ResourceSnapshot{CPUUtilization: 0.1, MemoryUtilization: 0.9})
	assert.Equal(t, 1, got)
}

func TestRecommendNeverExceedsConfiguredMax(t *testing.T) {
	rm := newTestMonitor()
	got := rm.recommend(3, ResourceSnapshot{})
	assert.Equal(t, 3, got)
}

func TestSampleComputesMemoryUtilization(t *testing.T) {
	rm := New(Options{HighWatermark: 0.8, MaxConcurrency: 10})
	rm.readCPU = func() (uint64, error) { return 1000, nil }
	rm.readMem = func() (uint64, error) { return 512, nil }
	rm.readMemLimit = func() (uint64, error) { return 1024, nil }

	rm.sample()
	s := rm.Sample()
	assert.False(t, s.Degraded)
	assert.Equal(t, 0.5, s.MemoryUtilization)
	// no baseline yet, first sample cannot compute a CPU delta
	assert.Equal(t, 0.0, s.CPUUtilization)
}

func TestSampleKeepsLastGoodOnError(t *testing.T) {
	rm := New(Options{HighWatermark: 0.8, MaxConcurrency: 10})
	rm.readCPU = func() (uint64, error) { return 1000, nil }
	rm.readMem = func() (uint64, error) { return 512, nil }
	rm.readMemLimit = func() (uint64, error) { return 1024, nil }
	rm.sample()

	rm.readMem = func() (uint64, error) { return 0, fmt.Errorf("cgroup file vanished") }
	rm.sample()
	s := rm.Sample()
	assert.True(t, s.Degraded)
	assert.Equal(t, 0.5, s.MemoryUtilization)
}

func TestPauseForcesZeroRecommendation(t *testing.T) {
	rm := newTestMonitor()
	assert.Greater(t, rm.RecommendedConcurrency(10), 0)
	rm.Pause()
	assert.Equal(t, 0, rm.RecommendedConcurrency(10))
	rm.Resume()
	assert.Greater(t, rm.RecommendedConcurrency(10), 0)
}

func TestActiveTaskCounting(t *testing.T) {
	rm := newTestMonitor()
	rm.TaskStarted()
	rm.TaskStarted()
	assert.Equal(t, 2, rm.Sample().ActiveTaskCount)
	rm.TaskFinished()
	assert.Equal(t, 1, rm.Sample().ActiveTaskCount)
}
