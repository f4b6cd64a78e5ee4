// Package camera holds the view cameras the world traces from and the fixed cameras the
// voxelizer rasterizes through. A camera is a transform (position, target, up) plus a
// perspective or orthographic projection.
package camera

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ProjectionKind selects between perspective and orthographic projection.
type ProjectionKind int

const (
	ProjectionPerspective ProjectionKind = iota
	ProjectionOrthographic
)

func (k ProjectionKind) String() string {
	if k == ProjectionOrthographic {
		return "orthographic"
	}
	return "perspective"
}

// clipDepthCorrection remaps OpenGL clip depth [-w, w] onto the WebGPU range [0, w].
var clipDepthCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Projection describes the camera lens. Perspective uses Fov (radians, vertical) and Aspect;
// orthographic uses Width and Height in world units centred on the view axis.
type Projection struct {
	Kind   ProjectionKind
	Fov    float32
	Aspect float32
	Width  float32
	Height float32
	Near   float32
	Far    float32
}

// PerspectiveProjection returns a perspective lens.
//
// Parameters:
//   - fov: vertical field of view in radians
//   - aspect: width / height
//   - near, far: clip plane distances
//
// Returns:
//   - Projection: the lens
func PerspectiveProjection(fov, aspect, near, far float32) Projection {
	return Projection{Kind: ProjectionPerspective, Fov: fov, Aspect: aspect, Near: near, Far: far}
}

// OrthographicProjection returns an orthographic lens. Near may be negative so the volume
// extends behind the camera position.
//
// Parameters:
//   - width, height: the extent of the view volume in world units
//   - near, far: clip plane distances along the view axis
//
// Returns:
//   - Projection: the lens
func OrthographicProjection(width, height, near, far float32) Projection {
	return Projection{Kind: ProjectionOrthographic, Width: width, Height: height, Near: near, Far: far}
}

// Matrix returns the view→clip matrix with WebGPU clip depth.
func (p Projection) Matrix() mgl32.Mat4 {
	var m mgl32.Mat4
	if p.Kind == ProjectionOrthographic {
		hw, hh := p.Width/2, p.Height/2
		m = mgl32.Ortho(-hw, hw, -hh, hh, p.Near, p.Far)
	} else {
		m = mgl32.Perspective(p.Fov, p.Aspect, p.Near, p.Far)
	}
	return clipDepthCorrection.Mul4(m)
}

// cameraImpl is the implementation of the Camera interface.
type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	projection Projection

	view       mgl32.Mat4
	transform  mgl32.Mat4
	projMatrix mgl32.Mat4

	controller CameraController
}

// Camera is a positioned lens.
type Camera interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the world-space look-at point.
	Target() mgl32.Vec3

	// Up returns the up vector.
	Up() mgl32.Vec3

	// LookAt places the camera at eye looking toward target.
	//
	// Parameters:
	//   - eye: world-space camera position
	//   - target: world-space look-at point
	//   - up: the up direction
	LookAt(eye, target, up mgl32.Vec3)

	// Projection returns the current lens.
	Projection() Projection

	// SetProjection replaces the lens.
	SetProjection(p Projection)

	// SetAspect updates the aspect ratio of a perspective lens. Orthographic lenses are unchanged.
	SetAspect(aspect float32)

	// Transform returns the view→world matrix (the camera's placement in the world).
	Transform() mgl32.Mat4

	// ViewMatrix returns the world→view matrix.
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the view→clip matrix.
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns ProjectionMatrix * ViewMatrix.
	ViewProjectionMatrix() mgl32.Mat4

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// Update pulls the position and target from the attached controller, if any, and recomputes
	// the matrices.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera at (0, 0, 5) looking at the origin through a 60° perspective lens.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the new camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		position:   mgl32.Vec3{0, 0, 5},
		up:         mgl32.Vec3{0, 1, 0},
		projection: PerspectiveProjection(mgl32.DegToRad(60), 16.0/9.0, 0.1, 1000),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) updateMatrices() {
	c.view = mgl32.LookAtV(c.position, c.target, c.up)
	c.transform = c.view.Inv()
	c.projMatrix = c.projection.Matrix()
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) LookAt(eye, target, up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position, c.target, c.up = eye, target, up
	c.updateMatrices()
}

func (c *cameraImpl) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) SetProjection(p Projection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = p
	c.projMatrix = p.Matrix()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projection.Kind != ProjectionPerspective || aspect <= 0 {
		return
	}
	c.projection.Aspect = aspect
	c.projMatrix = c.projection.Matrix()
}

func (c *cameraImpl) Transform() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projMatrix.Mul4(c.view)
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.target = c.controller.Target()
	c.updateMatrices()
}
