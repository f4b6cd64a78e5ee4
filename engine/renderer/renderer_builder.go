package renderer

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipelines registers pipelines as soon as the backend is attached. NewRenderer panics if any
// of them fails to register.
//
// Parameters:
//   - pipelines: the pipelines to register
//
// Returns:
//   - RendererBuilderOption: a function that queues the pipelines for registration
func WithPipelines(pipelines ...pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPipelines = append(r.pendingPipelines, pipelines...)
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithSurfaceSize sets the initial surface size.
func WithSurfaceSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.width, r.height = width, height
	}
}

// WithValidation runs naga validation on every shader before its pipeline is registered.
//
// Parameters:
//   - validate: true to validate shaders at registration
//
// Returns:
//   - RendererBuilderOption: a function that toggles shader validation
func WithValidation(validate bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validateShaders = validate
	}
}
