// Package uniform builds the per-frame uniform state: the global compute scalars and the per-view
// trace matrices with one frame of camera history.
package uniform

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

// TraceSettings are the per-view render toggles.
type TraceSettings struct {
	ShowRaySteps bool   `yaml:"show_ray_steps" json:"show_ray_steps"`
	Samples      uint32 `yaml:"samples" json:"samples"`
	Shadows      bool   `yaml:"shadows" json:"shadows"`
}

// DefaultTraceSettings returns one sample per pixel with shadows on and ray-step debugging off.
func DefaultTraceSettings() TraceSettings {
	return TraceSettings{Samples: 1, Shadows: true}
}

// stream is the implementation of the Stream interface.
type stream struct {
	mu *sync.Mutex

	frame ComputeUniforms

	// lastCameras holds each view's Camera matrix from the frame it was last seen.
	lastCameras map[common.ViewID]mgl32.Mat4
	// seen records the views written since BeginFrame.
	seen map[common.ViewID]struct{}
}

// Stream produces the uniform values for one frame at a time.
//
// Usage pattern:
//  1. BeginFrame once with the clock
//  2. View once per active view
//  3. EndFrame to drop the history of views that were not seen
type Stream interface {
	// BeginFrame starts a frame and returns the global compute uniforms.
	//
	// Parameters:
	//   - elapsed: seconds since start
	//   - delta: seconds since the previous frame
	//
	// Returns:
	//   - ComputeUniforms: the values to upload for every compute pass
	BeginFrame(elapsed, delta float32) ComputeUniforms

	// Frame returns the compute uniforms of the current frame.
	Frame() ComputeUniforms

	// View computes a view's trace uniforms and records its camera for the next frame. A view
	// seen for the first time gets LastCamera equal to Camera.
	//
	// Parameters:
	//   - id: the view identity
	//   - transform: the camera's view → world matrix
	//   - projection: the camera's view → clip matrix
	//   - settings: the view's render toggles
	//
	// Returns:
	//   - TraceUniforms: the values to upload for the view's trace pass
	View(id common.ViewID, transform, projection mgl32.Mat4, settings TraceSettings) TraceUniforms

	// EndFrame prunes the history of every view not passed to View since BeginFrame.
	//
	// Returns:
	//   - int: the number of pruned views
	EndFrame() int

	// Len returns the number of views with recorded history.
	Len() int
}

var _ Stream = &stream{}

// NewStream creates an empty stream.
func NewStream() Stream {
	return &stream{
		mu:          &sync.Mutex{},
		lastCameras: make(map[common.ViewID]mgl32.Mat4),
		seen:        make(map[common.ViewID]struct{}),
	}
}

func (s *stream) BeginFrame(elapsed, delta float32) ComputeUniforms {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = ComputeUniforms{Time: elapsed, DeltaTime: delta}
	clear(s.seen)
	return s.frame
}

func (s *stream) Frame() ComputeUniforms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *stream) View(id common.ViewID, transform, projection mgl32.Mat4, settings TraceSettings) TraceUniforms {
	camera := projection.Mul4(transform.Inv())
	cameraInverse := transform.Mul4(projection.Inv())

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastCameras[id]
	if !ok {
		last = camera
	}
	s.lastCameras[id] = camera
	s.seen[id] = struct{}{}

	return TraceUniforms{
		Camera:        camera,
		CameraInverse: cameraInverse,
		LastCamera:    last,
		Projection:    projection,
		Time:          s.frame.Time,
		ShowRaySteps:  boolToU32(settings.ShowRaySteps),
		Samples:       max(settings.Samples, 1),
		Shadows:       boolToU32(settings.Shadows),
	}
}

func (s *stream) EndFrame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id := range s.lastCameras {
		if _, ok := s.seen[id]; !ok {
			delete(s.lastCameras, id)
			pruned++
		}
	}
	return pruned
}

func (s *stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastCameras)
}
