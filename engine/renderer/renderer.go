package renderer

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

var (
	// ErrUnknownPipeline is returned when a pipeline key has not been registered.
	ErrUnknownPipeline = errors.New("renderer: unknown pipeline")
	// ErrNoComputeFrame is returned when recording outside BeginComputeFrame/EndComputeFrame.
	ErrNoComputeFrame = errors.New("renderer: no compute frame in progress")
	// ErrBindGroupNotReady is returned when a bound provider has no bind group or is missing a resource.
	ErrBindGroupNotReady = errors.New("renderer: bind group not ready")
	// ErrMissingResource is returned by InitBindGroup when a texture binding has no texture.
	ErrMissingResource = errors.New("renderer: missing resource for binding")
)

// Stats counts renderer activity since creation. Tests and the profiler read it.
type Stats struct {
	// Dispatches counts compute dispatches per pipeline key.
	Dispatches map[string]int
	// Draws counts draws per pipeline key.
	Draws map[string]int
	// BufferAllocations counts buffers created.
	BufferAllocations int
	// TextureAllocations counts textures created.
	TextureAllocations int
	// Submissions counts EndComputeFrame calls.
	Submissions int
	// Presents counts Present calls.
	Presents int
}

// BufferWrite is re-exported so callers building write lists need only this package.
type BufferWrite = bind_group_provider.BufferWrite

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backend RendererBackend
	stats   Stats

	width, height   int
	validateShaders bool

	// Pre-creation config collected from builder options
	pendingPipelines   []pipeline.Pipeline
	pendingPresentMode *PresentMode
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API designed to simplify rendering tasks into a streamlined and idiomatic flow.
// The Renderer manages a cache of pipelines, derives buffer sizes and usages from reflected shader
// layouts, and delegates recording to a backend so the same passes run on WebGPU or on the host.
type Renderer interface {
	// Type returns the type of the attached backend.
	Type() RendererBackendType

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding backend
	// pipeline objects, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// CreateBuffer allocates a zero-filled buffer.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes, rounded up to a multiple of 4
	//   - usage: usage flags
	//
	// Returns:
	//   - resource.Buffer: the new buffer
	//   - error: an error if allocation fails
	CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error)

	// CreateTexture allocates a zero-filled 2D texture. Zero dimensions are raised to 1.
	CreateTexture(label string, width, height uint32, format resource.TextureFormat, usage resource.TextureUsage) (resource.Texture, error)

	// InitBindGroup creates any missing buffers for the layout's buffer bindings, then the bind group,
	// and stores both on the provider. Texture bindings must already be set or shared on the provider.
	// Buffer usage and size can be overridden per binding.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to initialize
	//   - layout: the reflected layout of the group
	//   - bufferUsageOverrides: extra usage flags to OR into the derived usage, keyed by binding (nil safe)
	//   - bufferSizeOverrides: sizes to use instead of MinBindingSize, keyed by binding (nil safe)
	//
	// Returns:
	//   - error: an error if a resource is missing or creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]resource.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// RebindGroup recreates the provider's bind group from its current resources, after a texture or
	// shared buffer was swapped.
	RebindGroup(provider bind_group_provider.BindGroupProvider) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	// Each BufferWrite targets a specific buffer on a BindGroupProvider at a given binding and offset.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: the first write that targets a missing buffer
	WriteBuffers(writes []BufferWrite) error

	// WriteBuffer writes data directly into a buffer at offset.
	WriteBuffer(buf resource.Buffer, offset uint64, data []byte) error

	// WriteTexture uploads tightly packed texel data into a texture.
	WriteTexture(tex resource.Texture, data []byte) error

	// BeginComputeFrame opens the frame's command encoder. Dispatches, draws and copies are only
	// valid between BeginComputeFrame and EndComputeFrame.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key and records a compute pass.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - groups: bind group providers indexed by @group; nil entries are left unbound
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: ErrUnknownPipeline, ErrNoComputeFrame, ErrBindGroupNotReady, or a backend error
	DispatchCompute(pipelineKey string, groups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// Draw looks up the cached render Pipeline by key and records a non-indexed draw into target.
	//
	// Parameters:
	//   - pipelineKey: the render pipeline key
	//   - target: the color attachment
	//   - groups: bind group providers indexed by @group
	//   - vertices: the vertex buffer
	//   - vertexCount: the number of vertices
	//
	// Returns:
	//   - error: ErrUnknownPipeline, ErrNoComputeFrame, ErrBindGroupNotReady, or a backend error
	Draw(pipelineKey string, target resource.Texture, groups []bind_group_provider.BindGroupProvider, vertices resource.Buffer, vertexCount uint32) error

	// CopyBufferToBuffer records a copy of size bytes between two buffers within the frame.
	CopyBufferToBuffer(src, dst resource.Buffer, size uint64) error

	// EndComputeFrame finishes the frame encoder and submits it.
	EndComputeFrame() error

	// MapRead schedules an asynchronous read of a MapRead buffer. The callback runs from a later Poll.
	MapRead(buf resource.Buffer, size uint64, callback func(data []byte, err error))

	// Poll drives asynchronous map callbacks without blocking.
	Poll()

	// ReadBuffer blocks until the buffer contents are available. Tooling and tests only.
	ReadBuffer(buf resource.Buffer) ([]byte, error)

	// ReadTexture blocks until the texture contents are available. Tooling and tests only.
	ReadTexture(tex resource.Texture) ([]byte, error)

	// Present shows source on the surface.
	Present(source resource.Texture) error

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SurfaceSize returns the last configured surface size.
	SurfaceSize() common.Extent2D

	// SetPresentMode sets the surface present mode. A call to Resize is required after changing
	// this for the new mode to take effect.
	SetPresentMode(mode PresentMode)

	// Stats returns a snapshot of renderer activity counters.
	Stats() Stats

	// Release releases the backend and every cached pipeline.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer attaches a backend and applies the builder options. Pipelines passed with
// WithPipelines are registered immediately.
//
// Parameters:
//   - backend: the backend implementation, e.g. NewHeadlessBackend() or wgpu_backend.New(...)
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backend RendererBackend, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backend:       backend,
		stats: Stats{
			Dispatches: make(map[string]int),
			Draws:      make(map[string]int),
		},
	}
	for _, opt := range options {
		opt(r)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	if r.width > 0 && r.height > 0 {
		r.backend.ConfigureSurface(r.width, r.height)
	}
	if err := r.RegisterPipelines(r.pendingPipelines...); err != nil {
		panic(fmt.Sprintf("renderer: failed to register pipelines: %v", err))
	}
	r.pendingPipelines = nil
	return r
}

func (r *renderer) Type() RendererBackendType {
	return r.backend.Type()
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if r.validateShaders {
			for _, st := range []shader.ShaderType{shader.ShaderTypeCompute, shader.ShaderTypeVertex, shader.ShaderTypeFragment} {
				if s := p.Shader(st); s != nil {
					if err := s.Validate(); err != nil {
						return err
					}
				}
			}
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("renderer: compute pipeline %q: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("renderer: render pipeline %q: %w", key, err)
			}
		}
		r.pipelineCache[key] = p
		common.Logger().Debug("pipeline registered", "key", key, "backend", r.backend.Type().String())
	}
	return nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	size = max((size+3)&^3, 4)
	buf, err := r.backend.CreateBuffer(label, size, usage)
	if err != nil {
		return nil, fmt.Errorf("renderer: create buffer %q: %w", label, err)
	}
	r.mu.Lock()
	r.stats.BufferAllocations++
	r.mu.Unlock()
	return buf, nil
}

func (r *renderer) CreateTexture(label string, width, height uint32, format resource.TextureFormat, usage resource.TextureUsage) (resource.Texture, error) {
	ext := common.Extent2D{Width: width, Height: height}.Clamp1()
	tex, err := r.backend.CreateTexture(label, ext.Width, ext.Height, format, usage)
	if err != nil {
		return nil, fmt.Errorf("renderer: create texture %q: %w", label, err)
	}
	r.mu.Lock()
	r.stats.TextureAllocations++
	r.mu.Unlock()
	return tex, nil
}

// derivedUsage returns the default usage for a buffer binding kind.
func derivedUsage(kind shader.BindingKind) resource.BufferUsage {
	switch kind {
	case shader.BindingKindUniform:
		return resource.BufferUsageUniform | resource.BufferUsageCopyDst
	case shader.BindingKindStorage:
		return resource.BufferUsageStorage | resource.BufferUsageCopyDst | resource.BufferUsageCopySrc
	default:
		return resource.BufferUsageStorage | resource.BufferUsageCopyDst
	}
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout, bufferUsageOverrides map[int]resource.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	for _, e := range layout.Entries {
		switch {
		case e.Kind.IsBuffer():
			if provider.Buffer(e.Binding) != nil {
				continue
			}
			size := e.MinBindingSize
			if override, ok := bufferSizeOverrides[e.Binding]; ok {
				size = override
			}
			if e.Kind == shader.BindingKindUniform {
				size = max(size, 16)
			}
			usage := derivedUsage(e.Kind) | bufferUsageOverrides[e.Binding]
			buf, err := r.CreateBuffer(fmt.Sprintf("%s/%s", provider.Label(), e.Name), size, usage)
			if err != nil {
				return err
			}
			provider.SetBuffer(e.Binding, buf)
		case e.Kind == shader.BindingKindTexture || e.Kind == shader.BindingKindStorageTexture:
			if provider.Texture(e.Binding) == nil {
				return fmt.Errorf("%w: %s binding %d (%s)", ErrMissingResource, provider.Label(), e.Binding, e.Name)
			}
		}
	}
	provider.SetLayout(layout)
	if err := r.backend.CreateBindGroup(provider, layout); err != nil {
		return fmt.Errorf("renderer: bind group %q: %w", provider.Label(), err)
	}
	return nil
}

func (r *renderer) RebindGroup(provider bind_group_provider.BindGroupProvider) error {
	layout := provider.Layout()
	for _, e := range layout.Entries {
		if e.Kind.IsBuffer() && provider.Buffer(e.Binding) == nil {
			return fmt.Errorf("%w: %s binding %d (%s)", ErrMissingResource, provider.Label(), e.Binding, e.Name)
		}
		if !e.Kind.IsBuffer() && e.Kind != shader.BindingKindSampler && provider.Texture(e.Binding) == nil {
			return fmt.Errorf("%w: %s binding %d (%s)", ErrMissingResource, provider.Label(), e.Binding, e.Name)
		}
	}
	if err := r.backend.CreateBindGroup(provider, layout); err != nil {
		return fmt.Errorf("renderer: bind group %q: %w", provider.Label(), err)
	}
	return nil
}

func (r *renderer) WriteBuffers(writes []BufferWrite) error {
	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			return fmt.Errorf("%w: %s binding %d", ErrMissingResource, w.Provider.Label(), w.Binding)
		}
		if err := r.backend.WriteBuffer(buf, w.Offset, w.Data); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) WriteBuffer(buf resource.Buffer, offset uint64, data []byte) error {
	return r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) WriteTexture(tex resource.Texture, data []byte) error {
	return r.backend.WriteTexture(tex, data)
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) lookup(key string, want pipeline.PipelineType) (pipeline.Pipeline, error) {
	r.mu.Lock()
	p, exists := r.pipelineCache[key]
	r.mu.Unlock()
	if !exists || p.Type() != want {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, key)
	}
	return p, nil
}

func checkGroups(groups []bind_group_provider.BindGroupProvider) error {
	for i, g := range groups {
		if g != nil && !g.Ready() {
			return fmt.Errorf("%w: group %d (%s)", ErrBindGroupNotReady, i, g.Label())
		}
	}
	return nil
}

func (r *renderer) DispatchCompute(pipelineKey string, groups []bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	p, err := r.lookup(pipelineKey, pipeline.PipelineTypeCompute)
	if err != nil {
		return err
	}
	if err := checkGroups(groups); err != nil {
		return err
	}
	if workGroupCount[0] == 0 || workGroupCount[1] == 0 || workGroupCount[2] == 0 {
		return nil
	}
	if err := r.backend.DispatchCompute(p, groups, workGroupCount); err != nil {
		return err
	}
	r.mu.Lock()
	r.stats.Dispatches[pipelineKey]++
	r.mu.Unlock()
	return nil
}

func (r *renderer) Draw(pipelineKey string, target resource.Texture, groups []bind_group_provider.BindGroupProvider, vertices resource.Buffer, vertexCount uint32) error {
	p, err := r.lookup(pipelineKey, pipeline.PipelineTypeRender)
	if err != nil {
		return err
	}
	if err := checkGroups(groups); err != nil {
		return err
	}
	if vertexCount == 0 {
		return nil
	}
	if err := r.backend.Draw(p, target, groups, vertices, vertexCount); err != nil {
		return err
	}
	r.mu.Lock()
	r.stats.Draws[pipelineKey]++
	r.mu.Unlock()
	return nil
}

func (r *renderer) CopyBufferToBuffer(src, dst resource.Buffer, size uint64) error {
	return r.backend.CopyBufferToBuffer(src, dst, size)
}

func (r *renderer) EndComputeFrame() error {
	if err := r.backend.EndComputeFrame(); err != nil {
		return err
	}
	r.mu.Lock()
	r.stats.Submissions++
	r.mu.Unlock()
	return nil
}

func (r *renderer) MapRead(buf resource.Buffer, size uint64, callback func(data []byte, err error)) {
	r.backend.MapRead(buf, size, callback)
}

func (r *renderer) Poll() {
	r.backend.Poll(false)
}

func (r *renderer) ReadBuffer(buf resource.Buffer) ([]byte, error) {
	return r.backend.ReadBuffer(buf)
}

func (r *renderer) ReadTexture(tex resource.Texture) ([]byte, error) {
	return r.backend.ReadTexture(tex)
}

func (r *renderer) Present(source resource.Texture) error {
	if err := r.backend.Present(source); err != nil {
		return err
	}
	r.mu.Lock()
	r.stats.Presents++
	r.mu.Unlock()
	return nil
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SurfaceSize() common.Extent2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return common.Extent2D{Width: uint32(max(r.width, 0)), Height: uint32(max(r.height, 0))}
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Dispatches = maps.Clone(r.stats.Dispatches)
	s.Draws = maps.Clone(r.stats.Draws)
	return s
}

func (r *renderer) Release() {
	r.mu.Lock()
	clear(r.pipelineCache)
	r.mu.Unlock()
	r.backend.Release()
}
