package renderer

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the host backend, which keeps resources in system memory and runs
	// the host kernels attached to each pipeline. It needs no GPU or window.
	BackendTypeHeadless
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHeadless:
		return "headless"
	default:
		return "unknown"
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// RendererBackend is implemented by each GPU API. The Renderer resolves pipeline keys, derives
// buffer sizes and usages from reflected layouts, and keeps statistics; the backend only creates
// and records.
type RendererBackend interface {
	// Type returns the backend identity.
	Type() RendererBackendType

	// RegisterComputePipeline creates the backend compute pipeline for p and stores the handle on it.
	RegisterComputePipeline(p pipeline.Pipeline) error

	// RegisterRenderPipeline creates the backend render pipeline for p and stores the handle on it.
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// CreateBuffer allocates a zero-filled buffer.
	CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error)

	// CreateTexture allocates a zero-filled 2D texture.
	CreateTexture(label string, width, height uint32, format resource.TextureFormat, usage resource.TextureUsage) (resource.Texture, error)

	// CreateBindGroup builds the backend bind group for the provider's current resources and stores it
	// on the provider.
	CreateBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout) error

	// WriteBuffer queues a write of data into buf at offset.
	WriteBuffer(buf resource.Buffer, offset uint64, data []byte) error

	// WriteTexture queues a full upload of tightly packed texel data.
	WriteTexture(tex resource.Texture, data []byte) error

	// BeginComputeFrame opens the frame command encoder.
	BeginComputeFrame() error

	// DispatchCompute records one compute pass. groups is indexed by @group; nil entries are unbound.
	DispatchCompute(p pipeline.Pipeline, groups []bind_group_provider.BindGroupProvider, workgroups [3]uint32) error

	// Draw records one non-indexed render pass into target.
	Draw(p pipeline.Pipeline, target resource.Texture, groups []bind_group_provider.BindGroupProvider, vertices resource.Buffer, vertexCount uint32) error

	// CopyBufferToBuffer records a copy of size bytes from the start of src to the start of dst.
	CopyBufferToBuffer(src, dst resource.Buffer, size uint64) error

	// EndComputeFrame finishes and submits the frame command encoder.
	EndComputeFrame() error

	// MapRead asynchronously maps size bytes of a MapRead buffer. The callback receives a copy of the
	// bytes and runs from a later Poll, never from MapRead itself.
	MapRead(buf resource.Buffer, size uint64, callback func(data []byte, err error))

	// Poll drives pending map callbacks. With wait set it blocks until the queue is idle.
	Poll(wait bool)

	// ReadBuffer blocks until the buffer contents are available. Tooling only.
	ReadBuffer(buf resource.Buffer) ([]byte, error)

	// ReadTexture blocks until the texture contents are available, tightly packed. Tooling only.
	ReadTexture(tex resource.Texture) ([]byte, error)

	// Present shows source on the surface, scaling to the surface size.
	Present(source resource.Texture) error

	// ConfigureSurface resizes the presentation surface.
	ConfigureSurface(width, height int)

	// SetPresentMode changes how frames are delivered to the display.
	SetPresentMode(mode PresentMode)

	// Release frees the device and every backend object.
	Release()
}
