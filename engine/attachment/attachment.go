// Package attachment owns the per-view render targets the trace pass writes: normal, position and
// colour, sized to the view's physical viewport.
package attachment

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
)

const (
	// NormalFormat holds the surface normal in xyz and the ray step count in w.
	NormalFormat = resource.TextureFormatRGBA16Float
	// PositionFormat holds the hit position in xyz and 1 in w for a hit.
	PositionFormat = resource.TextureFormatRGBA32Float
	// ColorFormat is the HDR colour target handed to post-processing.
	ColorFormat = resource.TextureFormatRGBA16Float

	usage = resource.TextureUsageStorageBinding | resource.TextureUsageTextureBinding |
		resource.TextureUsageCopySrc | resource.TextureUsageCopyDst
)

// set is the implementation of the Set interface.
type set struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	label    string

	size        common.Extent2D
	normal      resource.Texture
	position    resource.Texture
	color       resource.Texture
	allocations int
}

// Set is one view's attachment textures. They are reallocated exactly when the viewport size
// changes.
type Set interface {
	// Resize reallocates the textures if size differs from the current size. Zero dimensions are
	// raised to 1.
	//
	// Parameters:
	//   - size: the physical viewport size
	//
	// Returns:
	//   - bool: true if the textures were reallocated
	//   - error: if allocation fails; the previous textures stay in place
	Resize(size common.Extent2D) (bool, error)

	// Size returns the current texture size.
	Size() common.Extent2D

	Normal() resource.Texture
	Position() resource.Texture
	Color() resource.Texture

	// Slots returns the textures keyed by their graph slot.
	Slots() graph.Slots

	// Allocations returns how many times the textures were allocated, including the initial 1x1.
	Allocations() int

	// Release frees the textures.
	Release()
}

var _ Set = &set{}

// NewSet allocates a 1x1 set. It panics if the textures cannot be created.
//
// Parameters:
//   - r: the renderer that owns the textures
//   - options: functional options to configure the set
//
// Returns:
//   - Set: the new attachment set
func NewSet(r renderer.Renderer, options ...SetBuilderOption) Set {
	s := &set{
		mu:       &sync.Mutex{},
		renderer: r,
		label:    "view",
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.allocate(common.Extent2D{Width: 1, Height: 1}); err != nil {
		panic(fmt.Sprintf("attachment: %v", err))
	}
	return s
}

func (s *set) allocate(size common.Extent2D) error {
	create := func(name string, format resource.TextureFormat) (resource.Texture, error) {
		return s.renderer.CreateTexture(s.label+" "+name, size.Width, size.Height, format, usage)
	}
	normal, err := create("normal", NormalFormat)
	if err != nil {
		return err
	}
	position, err := create("position", PositionFormat)
	if err != nil {
		normal.Release()
		return err
	}
	color, err := create("color", ColorFormat)
	if err != nil {
		normal.Release()
		position.Release()
		return err
	}

	s.releaseTextures()
	s.normal, s.position, s.color = normal, position, color
	s.size = size
	s.allocations++
	return nil
}

func (s *set) releaseTextures() {
	for _, tex := range []resource.Texture{s.normal, s.position, s.color} {
		if tex != nil {
			tex.Release()
		}
	}
}

func (s *set) Resize(size common.Extent2D) (bool, error) {
	size = size.Clamp1()
	s.mu.Lock()
	defer s.mu.Unlock()
	if size == s.size {
		return false, nil
	}
	if err := s.allocate(size); err != nil {
		return false, fmt.Errorf("attachment: resize %s to %s: %w", s.label, size, err)
	}
	common.Logger().Debug("attachments resized", "view", s.label, "size", size)
	return true, nil
}

func (s *set) Size() common.Extent2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *set) Normal() resource.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.normal
}

func (s *set) Position() resource.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *set) Color() resource.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *set) Slots() graph.Slots {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.Slots{
		graph.SlotNormal:   s.normal,
		graph.SlotPosition: s.position,
		graph.SlotColor:    s.color,
	}
}

func (s *set) Allocations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocations
}

func (s *set) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseTextures()
	s.normal, s.position, s.color = nil, nil, nil
}
