package voxelization

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/camera"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// TargetFormat is the format of the voxelization target image.
const TargetFormat = resource.TextureFormatRGBA8Unorm

// axisViews are the three voxelization directions: looking down +X with Y up, +Y with Z up and
// +Z with Y up.
var axisViews = [3][2]mgl32.Vec3{
	{{1, 0, 0}, {0, 1, 0}},
	{{0, 1, 0}, {0, 0, 1}},
	{{0, 0, 1}, {0, 1, 0}},
}

// cameras is the implementation of the Cameras interface.
type cameras struct {
	mu *sync.Mutex

	renderer renderer.Renderer

	textureSize    uint32
	voxelsPerMeter float32
	cameras        [3]camera.Camera
	providers      [3]bind_group_provider.BindGroupProvider
	target         resource.Texture
	resizes        int
}

// Cameras are the three orthographic cameras the voxelization pass draws through, and the
// target image whose size sets one fragment per voxel column.
type Cameras interface {
	// Update fits the cameras to the world. The target image is reallocated only when the texture
	// size changed.
	//
	// Parameters:
	//   - d: the world descriptor
	//
	// Returns:
	//   - bool: true if the target was resized
	//   - error: if reallocation or the uniform upload fails
	Update(d voxel.Descriptor) (bool, error)

	// Camera returns the camera of an axis (0 = X, 1 = Y, 2 = Z).
	Camera(axis int) camera.Camera

	// Provider returns the camera bind group of an axis.
	Provider(axis int) bind_group_provider.BindGroupProvider

	// Target returns the target image.
	Target() resource.Texture

	// Resizes returns how many times the target was resized after creation.
	Resizes() int

	// Release frees the target and the camera uniforms.
	Release()
}

var _ Cameras = &cameras{}

// NewCameras creates the cameras with a 1x1 target. It panics if GPU resources cannot be created.
func NewCameras(r renderer.Renderer) Cameras {
	c := &cameras{mu: &sync.Mutex{}, renderer: r}
	for i, v := range axisViews {
		c.cameras[i] = camera.NewCamera(camera.WithPosition(mgl32.Vec3{}), camera.WithTarget(v[0]), camera.WithUp(v[1]))
		c.providers[i] = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("voxelization camera %d", i))
		if err := r.InitBindGroup(c.providers[i], CameraLayout(GroupCamera), nil, nil); err != nil {
			panic(fmt.Sprintf("voxelization: camera bind group: %v", err))
		}
	}
	target, err := r.CreateTexture("voxelization target", 1, 1, TargetFormat, resource.TextureUsageRenderAttachment|resource.TextureUsageTextureBinding)
	if err != nil {
		panic(fmt.Sprintf("voxelization: target: %v", err))
	}
	c.target = target
	return c
}

func (c *cameras) Update(d voxel.Descriptor) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.TextureSize == c.textureSize && d.VoxelsPerMeter == c.voxelsPerMeter {
		return false, nil
	}

	resized := false
	if d.TextureSize != c.textureSize {
		target, err := c.renderer.CreateTexture("voxelization target", d.TextureSize, d.TextureSize, TargetFormat, c.target.Usage())
		if err != nil {
			return false, fmt.Errorf("voxelization: resize target: %w", err)
		}
		c.target.Release()
		c.target = target
		c.resizes++
		resized = true
		common.Logger().Debug("voxelization cameras resized", "size", d.TextureSize)
	}

	side := d.Side()
	lens := camera.OrthographicProjection(2*side, 2*side, -side, side)
	writes := make([]renderer.BufferWrite, 0, len(c.cameras))
	for i, cam := range c.cameras {
		cam.SetProjection(lens)
		vp := cam.ViewProjectionMatrix()
		buf := make([]byte, CameraUniformsSize)
		putMat4(buf, vp)
		writes = append(writes, renderer.BufferWrite{Provider: c.providers[i], Binding: 0, Data: buf})
	}
	if err := c.renderer.WriteBuffers(writes); err != nil {
		return resized, fmt.Errorf("voxelization: camera uniforms: %w", err)
	}
	c.textureSize, c.voxelsPerMeter = d.TextureSize, d.VoxelsPerMeter
	return resized, nil
}

func (c *cameras) Camera(axis int) camera.Camera {
	return c.cameras[axis]
}

func (c *cameras) Provider(axis int) bind_group_provider.BindGroupProvider {
	return c.providers[axis]
}

func (c *cameras) Target() resource.Texture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameras) Resizes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resizes
}

func (c *cameras) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.providers {
		p.Release()
	}
	c.target.Release()
}
