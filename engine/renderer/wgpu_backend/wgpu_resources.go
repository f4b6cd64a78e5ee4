package wgpu_backend

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// gpuBuffer wraps a *wgpu.Buffer as a resource.Buffer.
type gpuBuffer struct {
	label    string
	size     uint64
	usage    resource.BufferUsage
	buf      *wgpu.Buffer
	released bool
}

func (b *gpuBuffer) Label() string               { return b.label }
func (b *gpuBuffer) Size() uint64                { return b.size }
func (b *gpuBuffer) Usage() resource.BufferUsage { return b.usage }

func (b *gpuBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.buf.Release()
}

// gpuTexture wraps a *wgpu.Texture and its default view as a resource.Texture.
type gpuTexture struct {
	label         string
	width, height uint32
	format        resource.TextureFormat
	usage         resource.TextureUsage
	tex           *wgpu.Texture
	view          *wgpu.TextureView
	released      bool
}

func (t *gpuTexture) Label() string                  { return t.label }
func (t *gpuTexture) Width() uint32                  { return t.width }
func (t *gpuTexture) Height() uint32                 { return t.height }
func (t *gpuTexture) Format() resource.TextureFormat { return t.format }
func (t *gpuTexture) Usage() resource.TextureUsage   { return t.usage }

func (t *gpuTexture) Release() {
	if t.released {
		return
	}
	t.released = true
	t.view.Release()
	t.tex.Release()
}

func toBufferUsage(u resource.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(resource.BufferUsageMapRead) {
		out |= wgpu.BufferUsageMapRead
	}
	if u.Has(resource.BufferUsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(resource.BufferUsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	if u.Has(resource.BufferUsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(resource.BufferUsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(resource.BufferUsageVertex) {
		out |= wgpu.BufferUsageVertex
	}
	if u.Has(resource.BufferUsageIndex) {
		out |= wgpu.BufferUsageIndex
	}
	return out
}

func toTextureUsage(u resource.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u.Has(resource.TextureUsageCopySrc) {
		out |= wgpu.TextureUsageCopySrc
	}
	if u.Has(resource.TextureUsageCopyDst) {
		out |= wgpu.TextureUsageCopyDst
	}
	if u.Has(resource.TextureUsageTextureBinding) {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u.Has(resource.TextureUsageStorageBinding) {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u.Has(resource.TextureUsageRenderAttachment) {
		out |= wgpu.TextureUsageRenderAttachment
	}
	return out
}

// textureFormatMap maps engine texture formats onto wgpu formats.
var textureFormatMap = map[resource.TextureFormat]wgpu.TextureFormat{
	resource.TextureFormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	resource.TextureFormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	resource.TextureFormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	resource.TextureFormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	resource.TextureFormatR32Uint:        wgpu.TextureFormatR32Uint,
}

func toTextureFormat(f resource.TextureFormat) (wgpu.TextureFormat, error) {
	out, ok := textureFormatMap[f]
	if !ok {
		return wgpu.TextureFormatUndefined, fmt.Errorf("wgpu: unsupported texture format %s", f)
	}
	return out, nil
}

var storageAccessMap = map[shader.StorageAccess]wgpu.StorageTextureAccess{
	shader.StorageAccessWriteOnly: wgpu.StorageTextureAccessWriteOnly,
	shader.StorageAccessReadOnly:  wgpu.StorageTextureAccessReadOnly,
	shader.StorageAccessReadWrite: wgpu.StorageTextureAccessReadWrite,
}

// sharedVisibility returns every stage a binding kind may be visible to. Layouts use it instead of
// the reflected stage so one bind group (the voxel world, the compute group) binds to compute and
// render pipelines alike. Writable storage is not allowed in the vertex stage.
func sharedVisibility(e shader.BindingLayout) wgpu.ShaderStage {
	writable := e.Kind == shader.BindingKindStorage ||
		(e.Kind == shader.BindingKindStorageTexture && e.Access != shader.StorageAccessReadOnly)
	if writable {
		return wgpu.ShaderStageCompute | wgpu.ShaderStageFragment
	}
	return wgpu.ShaderStageCompute | wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
}

// layoutDescriptor converts a reflected group layout into a wgpu bind group layout descriptor.
// Sampled textures are declared unfilterable since every pass reads them with textureLoad.
//
// Parameters:
//   - label: the descriptor label
//   - layout: the reflected layout
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the descriptor
func layoutDescriptor(label string, layout shader.BindGroupLayout) wgpu.BindGroupLayoutDescriptor {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(layout.Entries))
	for _, e := range layout.Entries {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(e.Binding),
			Visibility: sharedVisibility(e),
		}
		switch e.Kind {
		case shader.BindingKindUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case shader.BindingKindStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		case shader.BindingKindReadOnlyStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		case shader.BindingKindTexture:
			entry.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case shader.BindingKindStorageTexture:
			format, _ := toTextureFormat(e.Format)
			entry.StorageTexture.Format = format
			entry.StorageTexture.Access = storageAccessMap[e.Access]
			entry.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
		case shader.BindingKindSampler:
			entry.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
			if e.Comparison {
				entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
			}
		}
		entries = append(entries, entry)
	}
	return wgpu.BindGroupLayoutDescriptor{Label: label, Entries: entries}
}

// layoutKey identifies group-equivalent layouts so their wgpu objects can be shared. Visibility is
// left out because layoutDescriptor widens it.
func layoutKey(layout shader.BindGroupLayout) string {
	var sb strings.Builder
	for _, e := range layout.Entries {
		fmt.Fprintf(&sb, "%d:%d:%d:%d:%t;", e.Binding, e.Kind, e.Format, e.Access, e.Comparison)
	}
	return sb.String()
}

var vertexFormatMap = map[shader.VertexFormat]wgpu.VertexFormat{
	shader.VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	shader.VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	shader.VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	shader.VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
	shader.VertexFormatSint32:    wgpu.VertexFormatSint32,
	shader.VertexFormatSint32x2:  wgpu.VertexFormatSint32x2,
	shader.VertexFormatSint32x3:  wgpu.VertexFormatSint32x3,
	shader.VertexFormatSint32x4:  wgpu.VertexFormatSint32x4,
	shader.VertexFormatUint32:    wgpu.VertexFormatUint32,
	shader.VertexFormatUint32x2:  wgpu.VertexFormatUint32x2,
	shader.VertexFormatUint32x3:  wgpu.VertexFormatUint32x3,
	shader.VertexFormatUint32x4:  wgpu.VertexFormatUint32x4,
}

func vertexBufferLayouts(layouts []shader.VertexLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(layouts))
	for _, l := range layouts {
		attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         vertexFormatMap[a.Format],
				Offset:         a.Offset,
				ShaderLocation: uint32(a.Location),
			})
		}
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: l.Stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  attrs,
		})
	}
	return out
}

func toCullMode(m pipeline.CullMode) wgpu.CullMode {
	switch m {
	case pipeline.CullModeFront:
		return wgpu.CullModeFront
	case pipeline.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func toTopology(t pipeline.Topology) wgpu.PrimitiveTopology {
	if t == pipeline.TopologyTriangleStrip {
		return wgpu.PrimitiveTopologyTriangleStrip
	}
	return wgpu.PrimitiveTopologyTriangleList
}

// alignedBytesPerRow rounds a texture row up to the 256 byte copy alignment.
func alignedBytesPerRow(width uint32, bytesPerTexel int) uint32 {
	row := width * uint32(bytesPerTexel)
	return (row + 255) &^ 255
}
