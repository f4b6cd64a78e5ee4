// Package wgpu_backend implements renderer.RendererBackend on WebGPU through cogentcore/webgpu.
// It is the only package in the module that links wgpu-native.
package wgpu_backend

import (
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/present.wgsl
var presentSource string

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	width, height int

	// layoutCache shares bind group layouts between pipelines with group-equivalent layouts.
	layoutCache map[string]*wgpu.BindGroupLayout

	// Compute frame state for batching all compute and draw passes into a single GPU submission
	computeFrameEncoder *wgpu.CommandEncoder

	presentPipeline *wgpu.RenderPipeline
	presentLayout   *wgpu.BindGroupLayout
}

var _ renderer.RendererBackend = &wgpuRendererBackendImpl{}

// New creates a WebGPU backend. With a nil surfaceDescriptor the backend renders offscreen and
// Present is a no-op.
//
// Parameters:
//   - surfaceDescriptor: the platform surface, usually from window.Window.SurfaceDescriptor
//   - forceFallbackAdapter: true to request a software adapter
//
// Returns:
//   - renderer.RendererBackend: the backend
//   - error: an error if no adapter or device is available
func New(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (renderer.RendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		layoutCache: make(map[string]*wgpu.BindGroupLayout),
	}
	if surfaceDescriptor != nil {
		w.surface = w.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: request adapter: %w", err)
	}
	w.adapter = a

	// The voxel and physics buffers exceed the default binding limits on large worlds, so take
	// whatever the adapter supports.
	supported := a.GetLimits()
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBufferBindingSize = supported.Limits.MaxStorageBufferBindingSize
	limits.MaxBufferSize = supported.Limits.MaxBufferSize

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	common.Logger().Info("wgpu backend ready", "fallback", forceFallbackAdapter, "surface", w.surface != nil)
	return w, nil
}

func (b *wgpuRendererBackendImpl) Type() renderer.RendererBackendType {
	return renderer.BackendTypeWGPU
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.width, b.height = width, height
	if b.surface == nil || width <= 0 || height <= 0 {
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode renderer.PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case renderer.PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case renderer.PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

// bindGroupLayouts returns one wgpu layout per group index in [0, max group] for the given shaders.
// Missing groups get an empty layout.
func (b *wgpuRendererBackendImpl) bindGroupLayouts(p pipeline.Pipeline, label string) ([]*wgpu.BindGroupLayout, error) {
	maxGroup := -1
	for _, st := range []shader.ShaderType{shader.ShaderTypeCompute, shader.ShaderTypeVertex, shader.ShaderTypeFragment} {
		if s := p.Shader(st); s != nil {
			for g := range s.BindGroupLayouts() {
				maxGroup = max(maxGroup, g)
			}
		}
	}
	out := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range out {
		layout, _ := p.BindGroupLayout(g)
		bgl, err := b.layoutFor(fmt.Sprintf("%s group %d", label, g), layout)
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		out[g] = bgl
	}
	return out, nil
}

func (b *wgpuRendererBackendImpl) layoutFor(label string, layout shader.BindGroupLayout) (*wgpu.BindGroupLayout, error) {
	key := layoutKey(layout)
	if bgl, ok := b.layoutCache[key]; ok {
		return bgl, nil
	}
	desc := layoutDescriptor(label, layout)
	bgl, err := b.device.CreateBindGroupLayout(&desc)
	if err != nil {
		return nil, err
	}
	b.layoutCache[key] = bgl
	return bgl, nil
}

func (b *wgpuRendererBackendImpl) createModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	return b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.Source(),
		},
	})
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	computeShader := p.Shader(shader.ShaderTypeCompute)
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}
	s, err := b.createModule(computeShader)
	if err != nil {
		return err
	}
	defer s.Release()

	bindGroupLayouts, err := b.bindGroupLayouts(p, p.PipelineKey())
	if err != nil {
		return err
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}
	p.SetPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if vertexShader == nil || fragmentShader == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	vs, err := b.createModule(vertexShader)
	if err != nil {
		return err
	}
	defer vs.Release()
	fs, err := b.createModule(fragmentShader)
	if err != nil {
		return err
	}
	defer fs.Release()

	bindGroupLayouts, err := b.bindGroupLayouts(p, p.PipelineKey())
	if err != nil {
		return err
	}
	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return err
	}
	targetFormat, err := toTextureFormat(p.TargetFormat())
	if err != nil {
		return err
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexBufferLayouts(vertexShader.VertexLayouts()),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets: []wgpu.ColorTargetState{{
				Format:    targetFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  toTopology(p.Topology()),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  toCullMode(p.CullMode()),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}
	p.SetPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: toBufferUsage(usage),
	})
	if err != nil {
		return nil, err
	}
	return &gpuBuffer{label: label, size: size, usage: usage, buf: buf}, nil
}

func (b *wgpuRendererBackendImpl) CreateTexture(label string, width, height uint32, format resource.TextureFormat, usage resource.TextureUsage) (resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wf, err := toTextureFormat(format)
	if err != nil {
		return nil, err
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     toTextureUsage(usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		Format:        wf,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &gpuTexture{label: label, width: width, height: height, format: format, usage: usage, tex: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(provider bind_group_provider.BindGroupProvider, layout shader.BindGroupLayout) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bgl, err := b.layoutFor(provider.Label(), layout)
	if err != nil {
		return err
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(layout.Entries))
	for _, e := range layout.Entries {
		entry := wgpu.BindGroupEntry{Binding: uint32(e.Binding)}
		switch {
		case e.Kind.IsBuffer():
			buf, ok := provider.Buffer(e.Binding).(*gpuBuffer)
			if !ok {
				return fmt.Errorf("buffer binding %d has no wgpu buffer", e.Binding)
			}
			entry.Buffer = buf.buf
			entry.Size = wgpu.WholeSize
		case e.Kind == shader.BindingKindTexture || e.Kind == shader.BindingKindStorageTexture:
			tex, ok := provider.Texture(e.Binding).(*gpuTexture)
			if !ok {
				return fmt.Errorf("texture binding %d has no wgpu texture", e.Binding)
			}
			entry.TextureView = tex.view
		default:
			return fmt.Errorf("binding %d: %s bindings are not supported", e.Binding, e.Kind)
		}
		entries = append(entries, entry)
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	if old, ok := provider.BindGroup().(*wgpu.BindGroup); ok {
		old.Release()
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf resource.Buffer, offset uint64, data []byte) error {
	gb, ok := buf.(*gpuBuffer)
	if !ok {
		return fmt.Errorf("wgpu: %s is not a wgpu buffer", buf.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.WriteBuffer(gb.buf, offset, data)
}

func (b *wgpuRendererBackendImpl) WriteTexture(tex resource.Texture, data []byte) error {
	gt, ok := tex.(*gpuTexture)
	if !ok {
		return fmt.Errorf("wgpu: %s is not a wgpu texture", tex.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  gt.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  gt.width * uint32(gt.format.BytesPerTexel()),
			RowsPerImage: gt.height,
		},
		&wgpu.Extent3D{
			Width:              gt.width,
			Height:             gt.height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return renderer.ErrNoComputeFrame
	}
	defer func() {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}()

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func bindGroupHandle(g bind_group_provider.BindGroupProvider) (*wgpu.BindGroup, bool) {
	if g == nil {
		return nil, false
	}
	bg, ok := g.BindGroup().(*wgpu.BindGroup)
	return bg, ok
}

func (b *wgpuRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, groups []bind_group_provider.BindGroupProvider, workgroups [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return renderer.ErrNoComputeFrame
	}
	computePipeline, ok := p.Pipeline().(*wgpu.ComputePipeline)
	if !ok {
		return fmt.Errorf("wgpu: %s has no compute pipeline", p.PipelineKey())
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	for i, g := range groups {
		if bg, ok := bindGroupHandle(g); ok {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
	}
	pass.DispatchWorkgroups(workgroups[0], workgroups[1], workgroups[2])
	pass.End()
	pass.Release()
	return nil
}

// Draw clears target to transparent black before drawing.
func (b *wgpuRendererBackendImpl) Draw(p pipeline.Pipeline, target resource.Texture, groups []bind_group_provider.BindGroupProvider, vertices resource.Buffer, vertexCount uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return renderer.ErrNoComputeFrame
	}
	renderPipeline, ok := p.Pipeline().(*wgpu.RenderPipeline)
	if !ok {
		return fmt.Errorf("wgpu: %s has no render pipeline", p.PipelineKey())
	}
	gt, ok := target.(*gpuTexture)
	if !ok {
		return fmt.Errorf("wgpu: draw target %s is not a wgpu texture", target.Label())
	}
	vb, ok := vertices.(*gpuBuffer)
	if !ok {
		return fmt.Errorf("wgpu: vertex buffer %s is not a wgpu buffer", vertices.Label())
	}

	pass := b.computeFrameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: p.PipelineKey(),
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       gt.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{},
		}},
	})
	pass.SetPipeline(renderPipeline)
	for i, g := range groups {
		if bg, ok := bindGroupHandle(g); ok {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
	}
	pass.SetVertexBuffer(0, vb.buf, 0, wgpu.WholeSize)
	pass.Draw(vertexCount, 1, 0, 0)
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) CopyBufferToBuffer(src, dst resource.Buffer, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return renderer.ErrNoComputeFrame
	}
	s, ok1 := src.(*gpuBuffer)
	d, ok2 := dst.(*gpuBuffer)
	if !ok1 || !ok2 {
		return errors.New("wgpu: copy between non-wgpu buffers")
	}
	return b.computeFrameEncoder.CopyBufferToBuffer(s.buf, 0, d.buf, 0, size)
}

func (b *wgpuRendererBackendImpl) MapRead(buf resource.Buffer, size uint64, callback func(data []byte, err error)) {
	gb, ok := buf.(*gpuBuffer)
	if !ok {
		callback(nil, errors.New("wgpu: map of non-wgpu buffer"))
		return
	}
	err := gb.buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			callback(nil, fmt.Errorf("wgpu: map of %s failed with status %d", gb.label, status))
			return
		}
		data := append([]byte(nil), gb.buf.GetMappedRange(0, uint(size))...)
		if err := gb.buf.Unmap(); err != nil {
			callback(nil, err)
			return
		}
		callback(data, nil)
	})
	if err != nil {
		callback(nil, err)
	}
}

func (b *wgpuRendererBackendImpl) Poll(wait bool) {
	b.device.Poll(wait, nil)
}

func (b *wgpuRendererBackendImpl) readback(size uint64, record func(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer) error) ([]byte, error) {
	b.mu.Lock()
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Staging Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := record(encoder, staging); err != nil {
		encoder.Release()
		b.mu.Unlock()
		return nil, err
	}
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.mu.Unlock()

	var (
		out    []byte
		mapErr error
		done   bool
	)
	b.MapRead(&gpuBuffer{label: "readback", size: size, buf: staging}, size, func(data []byte, err error) {
		out, mapErr, done = data, err, true
	})
	for !done {
		b.device.Poll(true, nil)
	}
	return out, mapErr
}

func (b *wgpuRendererBackendImpl) ReadBuffer(buf resource.Buffer) ([]byte, error) {
	gb, ok := buf.(*gpuBuffer)
	if !ok {
		return nil, errors.New("wgpu: read of non-wgpu buffer")
	}
	return b.readback(gb.size, func(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer) error {
		return encoder.CopyBufferToBuffer(gb.buf, 0, staging, 0, gb.size)
	})
}

func (b *wgpuRendererBackendImpl) ReadTexture(tex resource.Texture) ([]byte, error) {
	gt, ok := tex.(*gpuTexture)
	if !ok {
		return nil, errors.New("wgpu: read of non-wgpu texture")
	}
	bpt := gt.format.BytesPerTexel()
	rowPitch := alignedBytesPerRow(gt.width, bpt)
	raw, err := b.readback(uint64(rowPitch)*uint64(gt.height), func(encoder *wgpu.CommandEncoder, staging *wgpu.Buffer) error {
		return encoder.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{Texture: gt.tex, Aspect: wgpu.TextureAspectAll},
			&wgpu.ImageCopyBuffer{
				Buffer: staging,
				Layout: wgpu.TextureDataLayout{BytesPerRow: rowPitch, RowsPerImage: gt.height},
			},
			&wgpu.Extent3D{Width: gt.width, Height: gt.height, DepthOrArrayLayers: 1},
		)
	})
	if err != nil {
		return nil, err
	}
	row := int(gt.width) * bpt
	out := make([]byte, row*int(gt.height))
	for y := range int(gt.height) {
		copy(out[y*row:(y+1)*row], raw[y*int(rowPitch):])
	}
	return out, nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bgl := range b.layoutCache {
		bgl.Release()
	}
	clear(b.layoutCache)
	if b.presentPipeline != nil {
		b.presentPipeline.Release()
		b.presentPipeline = nil
	}
	if b.presentLayout != nil {
		b.presentLayout.Release()
		b.presentLayout = nil
	}
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	if b.surface != nil {
		b.surface.Release()
	}
	b.instance.Release()
}
