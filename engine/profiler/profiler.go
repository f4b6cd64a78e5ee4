// Package profiler logs frame rate and memory statistics and optionally records every frame report
// into a sqlite trace database.
package profiler

import (
	"fmt"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
)

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// frame time accumulated from reports since the last log line
	frameTime   time.Duration
	frameTimeN  int
	maxDispatch uint32

	tracePath string
	trace     *traceDB
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
//   - error: if the trace database cannot be opened
func NewProfiler(options ...ProfilerBuilderOption) (*Profiler, error) {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
	for _, opt := range options {
		opt(p)
	}
	if p.tracePath != "" {
		db, err := openTraceDB(p.tracePath)
		if err != nil {
			return nil, fmt.Errorf("profiler: %w", err)
		}
		p.trace = db
	}
	return p, nil
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, average frame time, heap usage, allocation rate, GC count/pause times,
// total memory and the largest physics dispatch.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	var frameMs float64
	if p.frameTimeN > 0 {
		frameMs = float64(p.frameTime.Microseconds()) / 1000 / float64(p.frameTimeN)
	}

	common.Logger().Info(fmt.Sprintf("[Profiler] FPS: %.2f | Frame: %.2f ms | Physics: %d | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, frameMs, p.maxDispatch, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB))

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.frameTime, p.frameTimeN, p.maxDispatch = 0, 0, 0
	return true
}

// Record accumulates a frame report for the next log line and queues it for the trace database.
// It is a world.Observer.
//
// Parameters:
//   - report: the frame report
func (p *Profiler) Record(report world.FrameReport) {
	p.frameTime += report.Duration
	p.frameTimeN++
	p.maxDispatch = max(p.maxDispatch, report.DispatchSize)
	p.trace.record(report)
}

// Close flushes and closes the trace database.
func (p *Profiler) Close() error {
	if p.trace == nil {
		return nil
	}
	return p.trace.close()
}
