package pipeline

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// CullMode selects which triangle faces a render pipeline discards.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// Topology is the primitive topology of a render pipeline.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader

	// handle is the backend pipeline object, set when the pipeline is registered.
	handle any

	cullMode     CullMode
	topology     Topology
	targetFormat resource.TextureFormat

	hostKernel Kernel
	hostRaster RasterKernel
}

// Pipeline describes a compute or render pipeline. It carries the shaders the GPU backend compiles,
// the fixed-function state for render pipelines, and the host kernels the headless backend runs
// in place of the shaders.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// BindGroupLayout returns the layout of a group as seen by every stage of the pipeline, merging
	// vertex and fragment visibility for render pipelines.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - shader.BindGroupLayout: the merged layout
	//   - bool: true if any stage declares the group
	BindGroupLayout(group int) (shader.BindGroupLayout, bool)

	// Pipeline returns the backend pipeline handle, or nil before registration.
	Pipeline() any

	// SetPipeline stores the backend pipeline handle.
	SetPipeline(handle any)

	// CullMode returns the face culling mode of a render pipeline.
	CullMode() CullMode

	// Topology returns the primitive topology of a render pipeline.
	Topology() Topology

	// TargetFormat returns the color target format of a render pipeline.
	TargetFormat() resource.TextureFormat

	// HostKernel returns the host implementation of a compute pipeline, or nil.
	HostKernel() Kernel

	// HostRaster returns the host implementation of a render pipeline, or nil.
	HostRaster() RasterKernel
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		cullMode:     CullModeNone,
		topology:     TopologyTriangleList,
		targetFormat: resource.TextureFormatRGBA8Unorm,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) BindGroupLayout(group int) (shader.BindGroupLayout, bool) {
	if p.pipelineType == PipelineTypeCompute {
		if p.computeShader == nil {
			return shader.BindGroupLayout{Group: group}, false
		}
		return p.computeShader.BindGroupLayout(group)
	}
	out := shader.BindGroupLayout{Group: group}
	found := false
	for _, s := range []shader.Shader{p.vertexShader, p.fragmentShader} {
		if s == nil {
			continue
		}
		if l, ok := s.BindGroupLayout(group); ok {
			out = out.Merge(l)
			found = true
		}
	}
	return out, found
}

func (p *pipeline) Pipeline() any {
	return p.handle
}

func (p *pipeline) SetPipeline(handle any) {
	p.handle = handle
}

func (p *pipeline) CullMode() CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() Topology {
	return p.topology
}

func (p *pipeline) TargetFormat() resource.TextureFormat {
	return p.targetFormat
}

func (p *pipeline) HostKernel() Kernel {
	return p.hostKernel
}

func (p *pipeline) HostRaster() RasterKernel {
	return p.hostRaster
}
