package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often Tick logs. Defaults to one second.
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithTraceDB records every frame report into a sqlite database at path.
//
// Parameters:
//   - path: the database file, created with its parent directory if missing
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithTraceDB(path string) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.tracePath = path
	}
}
