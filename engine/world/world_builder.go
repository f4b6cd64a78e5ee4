package world

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
)

// WorldBuilderOption is a functional option for configuring a World.
type WorldBuilderOption func(w *world)

// WithSource loads a world during NewWorld.
//
// Parameters:
//   - src: the world source, e.g. voxel.EmptySource(256)
//
// Returns:
//   - WorldBuilderOption: option function to apply
func WithSource(src voxel.Source) WorldBuilderOption {
	return func(w *world) {
		w.source = &src
	}
}

// WithVoxelsPerMeter sets the world scale used by LoadWorld. Defaults to 4.
func WithVoxelsPerMeter(vpm float32) WorldBuilderOption {
	return func(w *world) {
		if vpm > 0 {
			w.voxelsPerMeter = vpm
		}
	}
}

// WithPhysicsBufferLength sets the physics buffer length in u32 elements. Defaults to 1,000,000.
func WithPhysicsBufferLength(n uint64) WorldBuilderOption {
	return func(w *world) {
		w.physicsLength = n
	}
}

// WithAnimationBufferLength sets the animation buffer length in u32 elements. Defaults to
// 1,000,000.
func WithAnimationBufferLength(n uint64) WorldBuilderOption {
	return func(w *world) {
		w.animationLength = n
	}
}

// WithSettings sets the initial render graph toggles. Defaults to graph.DefaultSettings().
func WithSettings(s graph.Settings) WorldBuilderOption {
	return func(w *world) {
		w.settings = s
	}
}

// WithWorkers sets the number of goroutines preparing views in parallel. Defaults to 4.
func WithWorkers(n int) WorldBuilderOption {
	return func(w *world) {
		w.workers = max(n, 1)
	}
}

// WithPassHook installs the runner of a post-processing node. Nodes without a hook forward their
// colour input unchanged.
//
// Parameters:
//   - kind: one of graph.PassTonemapping, PassFxaa, PassUi or PassUpscaling
//   - hook: the runner
//
// Returns:
//   - WorldBuilderOption: option function to apply
func WithPassHook(kind graph.PassKind, hook PassHook) WorldBuilderOption {
	return func(w *world) {
		w.hooks[kind] = hook
	}
}

// WithObserver registers a callback receiving every frame report.
func WithObserver(o Observer) WorldBuilderOption {
	return func(w *world) {
		w.observers = append(w.observers, o)
	}
}
