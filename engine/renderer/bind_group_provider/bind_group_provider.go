package bind_group_provider

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.Mutex

	// label is a debug label, also used as the prefix for backend resource labels.
	label string

	// layout is the reflected group layout this provider was initialized against.
	layout shader.BindGroupLayout

	// bindGroup is the backend bind group handle, or nil until the Renderer initializes it.
	bindGroup any

	// buffers holds the buffers bound by this provider, keyed by binding index.
	buffers map[int]resource.Buffer
	// textures holds the textures bound by this provider, keyed by binding index.
	textures map[int]resource.Texture

	// shared marks bindings whose resource is owned elsewhere and must not be released here.
	shared map[int]bool
}

// BindGroupProvider owns the GPU resources behind one bind group.
//
// Usage pattern:
//  1. A pass creates a provider with NewBindGroupProvider and optionally shares resources owned
//     by another provider (the physics buffer, attachment textures) via ShareBuffer/ShareTexture
//  2. The pass calls Renderer.InitBindGroup with the reflected layout; the renderer creates any
//     missing buffers and the backend bind group
//  3. The pass stages uniform data each frame through Renderer.WriteBuffers
//  4. The provider is handed to Renderer.DispatchCompute or Renderer.Draw
type BindGroupProvider interface {
	// Release releases the backend bind group and every owned resource. Shared resources are
	// only forgotten.
	Release()

	// Label returns the debug label for this provider.
	Label() string

	// Layout returns the layout the provider was initialized against.
	Layout() shader.BindGroupLayout

	// SetLayout records the layout. Called by the Renderer during InitBindGroup.
	SetLayout(layout shader.BindGroupLayout)

	// BindGroup returns the backend bind group handle, or nil if not initialized.
	BindGroup() any

	// SetBindGroup replaces the backend bind group handle. Called by the Renderer.
	SetBindGroup(bg any)

	// Ready reports whether the provider has a bind group and a resource for every layout entry.
	Ready() bool

	// Buffer returns the buffer at a binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - resource.Buffer: the buffer or nil
	Buffer(binding int) resource.Buffer

	// Buffers returns all buffers keyed by binding index.
	Buffers() map[int]resource.Buffer

	// SetBuffer stores a buffer owned by this provider, releasing any previously owned buffer at the
	// same binding.
	SetBuffer(binding int, buf resource.Buffer)

	// ShareBuffer binds a buffer owned by someone else.
	ShareBuffer(binding int, buf resource.Buffer)

	// Texture returns the texture at a binding, or nil.
	Texture(binding int) resource.Texture

	// Textures returns all textures keyed by binding index.
	Textures() map[int]resource.Texture

	// SetTexture stores a texture owned by this provider, releasing any previously owned texture at
	// the same binding.
	SetTexture(binding int, tex resource.Texture)

	// ShareTexture binds a texture owned by someone else.
	ShareTexture(binding int, tex resource.Texture)

	// Shared reports whether the resource at binding is borrowed.
	Shared(binding int) bool
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty provider.
//
// Parameters:
//   - label: a debug label for the provider and the resources the renderer creates for it
//   - options: functional options to configure the provider
//
// Returns:
//   - BindGroupProvider: the new provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:       &sync.Mutex{},
		label:    label,
		buffers:  make(map[int]resource.Buffer),
		textures: make(map[int]resource.Texture),
		shared:   make(map[int]bool),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rel, ok := p.bindGroup.(interface{ Release() }); ok {
		rel.Release()
	}
	p.bindGroup = nil
	for binding, buf := range p.buffers {
		if !p.shared[binding] && buf != nil {
			buf.Release()
		}
	}
	for binding, tex := range p.textures {
		if !p.shared[binding] && tex != nil {
			tex.Release()
		}
	}
	clear(p.buffers)
	clear(p.textures)
	clear(p.shared)
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Layout() shader.BindGroupLayout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layout
}

func (p *bindGroupProvider) SetLayout(layout shader.BindGroupLayout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layout = layout
}

func (p *bindGroupProvider) BindGroup() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroup
}

func (p *bindGroupProvider) SetBindGroup(bg any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.bindGroup.(interface{ Release() }); ok && p.bindGroup != bg {
		old.Release()
	}
	p.bindGroup = bg
}

func (p *bindGroupProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindGroup == nil {
		return false
	}
	for _, e := range p.layout.Entries {
		switch {
		case e.Kind.IsBuffer():
			if p.buffers[e.Binding] == nil {
				return false
			}
		case e.Kind == shader.BindingKindTexture || e.Kind == shader.BindingKindStorageTexture:
			if p.textures[e.Binding] == nil {
				return false
			}
		}
	}
	return true
}

func (p *bindGroupProvider) Buffer(binding int) resource.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]resource.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers
}

func (p *bindGroupProvider) SetBuffer(binding int, buf resource.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.buffers[binding]; old != nil && old != buf && !p.shared[binding] {
		old.Release()
	}
	p.buffers[binding] = buf
	delete(p.shared, binding)
}

func (p *bindGroupProvider) ShareBuffer(binding int, buf resource.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.buffers[binding]; old != nil && old != buf && !p.shared[binding] {
		old.Release()
	}
	p.buffers[binding] = buf
	p.shared[binding] = true
}

func (p *bindGroupProvider) Texture(binding int) resource.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textures[binding]
}

func (p *bindGroupProvider) Textures() map[int]resource.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textures
}

func (p *bindGroupProvider) SetTexture(binding int, tex resource.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.textures[binding]; old != nil && old != tex && !p.shared[binding] {
		old.Release()
	}
	p.textures[binding] = tex
	delete(p.shared, binding)
}

func (p *bindGroupProvider) ShareTexture(binding int, tex resource.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.textures[binding]; old != nil && old != tex && !p.shared[binding] {
		old.Release()
	}
	p.textures[binding] = tex
	p.shared[binding] = true
}

func (p *bindGroupProvider) Shared(binding int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shared[binding]
}
