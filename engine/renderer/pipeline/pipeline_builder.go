package pipeline

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - s: the fragment shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = s
	}
}

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithCullMode sets the face culling mode. Pipelines default to CullModeNone.
func WithCullMode(mode CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology.
func WithTopology(topology Topology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithTargetFormat sets the color target format of a render pipeline.
func WithTargetFormat(format resource.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.targetFormat = format
	}
}

// WithHostKernel attaches the host implementation of a compute pipeline.
//
// Parameters:
//   - k: the kernel the headless backend runs for each dispatch
//
// Returns:
//   - PipelineBuilderOption: a function that sets the host kernel
func WithHostKernel(k Kernel) PipelineBuilderOption {
	return func(p *pipeline) {
		p.hostKernel = k
	}
}

// WithHostRaster attaches the host implementation of a render pipeline.
//
// Parameters:
//   - k: the raster kernel the headless backend runs for each draw
//
// Returns:
//   - PipelineBuilderOption: a function that sets the host raster kernel
func WithHostRaster(k RasterKernel) PipelineBuilderOption {
	return func(p *pipeline) {
		p.hostRaster = k
	}
}
