package pipeline

import "github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"

// HostImage is a host-side view of a 2D texture. Texels are read and written as four float channels
// regardless of storage format.
type HostImage interface {
	Width() uint32
	Height() uint32
	Format() resource.TextureFormat
	Load(x, y uint32) [4]float32
	Store(x, y uint32, v [4]float32)
}

// HostBindings resolves the resources bound for one dispatch or draw by group and binding.
type HostBindings interface {
	// Bytes returns the raw contents of a buffer binding, or nil if unbound.
	Bytes(group, binding int) []byte
	// Words returns a buffer binding as a little-endian u32 view, or nil if unbound.
	Words(group, binding int) []uint32
	// Image returns a texture binding, or nil if unbound.
	Image(group, binding int) HostImage
}

// Dispatch is one compute dispatch executed on the host.
type Dispatch struct {
	// Workgroups is the dispatched workgroup count.
	Workgroups [3]uint32
	// WorkgroupSize is the shader's @workgroup_size.
	WorkgroupSize [3]uint32
	// Bindings resolves the bound resources.
	Bindings HostBindings
	// Parallel runs fn(i) for every i in [0, n), possibly concurrently, and returns when all calls
	// have finished. Kernels use it only for invocations that write disjoint memory.
	Parallel func(n int, fn func(i int))
}

// Invocations returns the total invocation count along each axis.
func (d Dispatch) Invocations() [3]uint32 {
	return [3]uint32{
		d.Workgroups[0] * d.WorkgroupSize[0],
		d.Workgroups[1] * d.WorkgroupSize[1],
		d.Workgroups[2] * d.WorkgroupSize[2],
	}
}

// Kernel is the host implementation of a compute shader.
type Kernel func(d Dispatch) error

// Draw is one non-indexed draw executed on the host.
type Draw struct {
	// Target is the color attachment.
	Target HostImage
	// Vertices is the raw vertex buffer.
	Vertices []byte
	// VertexCount is the number of vertices to draw.
	VertexCount uint32
	// CullMode is the pipeline's face culling mode.
	CullMode CullMode
	// Bindings resolves the bound resources.
	Bindings HostBindings
}

// RasterKernel is the host implementation of a render pipeline.
type RasterKernel func(d Draw) error
