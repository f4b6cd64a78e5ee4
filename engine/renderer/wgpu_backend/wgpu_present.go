package wgpu_backend

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// ensurePresentPipeline builds the fullscreen blit used by Present for the current surface format.
// Callers hold b.mu.
func (b *wgpuRendererBackendImpl) ensurePresentPipeline() error {
	if b.presentPipeline != nil {
		return nil
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "present",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: presentSource,
		},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	b.presentLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "present group 0",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		}},
	})
	if err != nil {
		return err
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "present",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.presentLayout},
	})
	if err != nil {
		return err
	}
	b.presentPipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "present Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    b.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	return err
}

// Present blits source onto the surface with a fullscreen triangle, scaling nearest-neighbour.
func (b *wgpuRendererBackendImpl) Present(source resource.Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil || b.width <= 0 || b.height <= 0 {
		return nil
	}
	gt, ok := source.(*gpuTexture)
	if !ok {
		return errors.New("wgpu: present of non-wgpu texture")
	}
	if err := b.ensurePresentPipeline(); err != nil {
		return fmt.Errorf("wgpu: present pipeline: %w", err)
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "present Bind Group",
		Layout:  b.presentLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: gt.view}},
	})
	if err != nil {
		return err
	}
	defer bindGroup.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		}},
	})
	pass.SetPipeline(b.presentPipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.surface.Present()
	return nil
}
