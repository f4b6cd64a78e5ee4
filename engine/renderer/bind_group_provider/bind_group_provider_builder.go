package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithLayout sets the layout up front, before the Renderer initializes the provider.
//
// Parameters:
//   - layout: the reflected bind group layout
//
// Returns:
//   - BindGroupProviderOption: a function that sets the layout
func WithLayout(layout shader.BindGroupLayout) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.layout = layout
	}
}

// WithSharedBuffer binds a buffer owned by another provider.
//
// Parameters:
//   - binding: the binding index
//   - buf: the borrowed buffer
//
// Returns:
//   - BindGroupProviderOption: a function that shares the buffer
func WithSharedBuffer(binding int, buf resource.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = buf
		p.shared[binding] = true
	}
}

// WithSharedTexture binds a texture owned by another component.
//
// Parameters:
//   - binding: the binding index
//   - tex: the borrowed texture
//
// Returns:
//   - BindGroupProviderOption: a function that shares the texture
func WithSharedTexture(binding int, tex resource.Texture) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.textures[binding] = tex
		p.shared[binding] = true
	}
}
