package monitor

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/promptbench/promptbench/config"
	log "github.com/sirupsen/logrus"
)

// ResourceSnapshot is a point-in-time view of host load. Consumers always get
// a copy, never a reference into the monitor's internals.
type ResourceSnapshot struct {
	CPUUtilization         float64   `json:"cpu_utilization"`
	MemoryUtilization      float64   `json:"memory_utilization"`
	ActiveTaskCount        int       `json:"active_task_count"`
	RecommendedConcurrency int       `json:"recommended_concurrency"`
	Degraded               bool      `json:"degraded"`
	SampledAt              time.Time `json:"sampled_at"`
}

type Options struct {
	SampleInterval time.Duration
	HighWatermark  float64
	MaxConcurrency int
}

// ResourceMonitor samples cgroup CPU/memory on its own timer. Callers always
// read the latest cached snapshot and never wait for a fresh sample.
type ResourceMonitor struct {
	opts Options

	readCPU      func() (uint64, error)
	readMem      func() (uint64, error)
	readMemLimit func() (uint64, error)

	mu          sync.RWMutex
	latest      ResourceSnapshot
	lastCPUUsec uint64
	lastSampled time.Time

	activeTasks int64
	paused      int32
	stopChan    chan struct{}
	stopOnce    sync.Once
}

func New(opts Options) *ResourceMonitor {
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 3 * time.Second
	}
	if opts.HighWatermark == 0 {
		opts.HighWatermark = 0.85
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 10
	}
	return &ResourceMonitor{
		opts:         opts,
		readCPU:      ReadCPUUsage,
		readMem:      ReadMemoryUsage,
		readMemLimit: ReadMemoryLimit,
		stopChan:     make(chan struct{}),
	}
}

// Start kicks off the periodic sampling loop.
func (rm *ResourceMonitor) Start() {
	rm.sample()
	go func() {
		ticker := time.NewTicker(rm.opts.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rm.stopChan:
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

func (rm *ResourceMonitor) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
}

// TaskStarted and TaskFinished keep the in-flight task count. Called by the
// worker pool around every task execution.
func (rm *ResourceMonitor) TaskStarted() {
	n := atomic.AddInt64(&rm.activeTasks, 1)
	config.RunningTasksGauge.Set(float64(n))
}

func (rm *ResourceMonitor) TaskFinished() {
	n := atomic.AddInt64(&rm.activeTasks, -1)
	config.RunningTasksGauge.Set(float64(n))
}

// Pause tells the monitor to recommend zero concurrency, rejecting new work.
func (rm *ResourceMonitor) Pause() {
	atomic.StoreInt32(&rm.paused, 1)
}

func (rm *ResourceMonitor) Resume() {
	atomic.StoreInt32(&rm.paused, 0)
}

func (rm *ResourceMonitor) sample() {
	cpuUsec, cpuErr := rm.readCPU()
	memBytes, memErr := rm.readMem()
	memLimit, memLimitErr := rm.readMemLimit()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now()
	if cpuErr != nil || memErr != nil || memLimitErr != nil {
		// keep the last known-good snapshot rather than blocking admission
		log.Warnf("resource sampling degraded: cpu=%v mem=%v limit=%v", cpuErr, memErr, memLimitErr)
		rm.latest.Degraded = true
		rm.latest.ActiveTaskCount = int(atomic.LoadInt64(&rm.activeTasks))
		return
	}

	cpuUtil := rm.latest.CPUUtilization
	if !rm.lastSampled.IsZero() && cpuUsec >= rm.lastCPUUsec {
		elapsedUsec := float64(now.Sub(rm.lastSampled).Microseconds())
		if elapsedUsec > 0 {
			cpuUtil = float64(cpuUsec-rm.lastCPUUsec) / (elapsedUsec * float64(runtime.NumCPU()))
		}
	}
	rm.lastCPUUsec = cpuUsec
	rm.lastSampled = now

	memUtil := 0.0
	if memLimit > 0 {
		memUtil = float64(memBytes) / float64(memLimit)
	}

	rm.latest = ResourceSnapshot{
		CPUUtilization:    cpuUtil,
		MemoryUtilization: memUtil,
		ActiveTaskCount:   int(atomic.LoadInt64(&rm.activeTasks)),
		Degraded:          false,
		SampledAt:         now,
	}
	rm.latest.RecommendedConcurrency = rm.recommend(rm.opts.MaxConcurrency, rm.latest)

	config.CpuGauge.Set(cpuUtil)
	config.MemGauge.Set(memUtil)
	config.RecommendedConcurrencyGauge.Set(float64(rm.latest.RecommendedConcurrency))
}

// Sample returns the latest cached snapshot.
func (rm *ResourceMonitor) Sample() ResourceSnapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	s := rm.latest
	s.ActiveTaskCount = int(atomic.LoadInt64(&rm.activeTasks))
	return s
}

// IsUnderStress is true when CPU or memory utilization exceeds the high-water mark.
func (rm *ResourceMonitor) IsUnderStress() bool {
	s := rm.Sample()
	return s.CPUUtilization > rm.opts.HighWatermark || s.MemoryUtilization > rm.opts.HighWatermark
}

// RecommendedConcurrency returns min(configuredMax, derived), where derived
// shrinks linearly as utilization approaches the high-water mark. It never
// returns less than 1 unless the monitor has been paused.
func (rm *ResourceMonitor) RecommendedConcurrency(configuredMax int) int {
	if atomic.LoadInt32(&rm.paused) == 1 {
		return 0
	}
	s := rm.Sample()
	return rm.recommend(configuredMax, s)
}

func (rm *ResourceMonitor) recommend(configuredMax int, s ResourceSnapshot) int {
	if configuredMax < 1 {
		configuredMax = 1
	}
	util := math.Max(s.CPUUtilization, s.MemoryUtilization)
	if util >= rm.opts.HighWatermark {
		return 1
	}
	scale := 1 - util/rm.opts.HighWatermark
	derived := int(math.Ceil(float64(configuredMax) * scale))
	if derived < 1 {
		derived = 1
	}
	if derived > configuredMax {
		derived = configuredMax
	}
	return derived
}
