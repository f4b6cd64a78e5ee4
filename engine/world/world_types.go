package world

import (
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/physics"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
	"github.com/go-gl/mathgl/mgl32"
)

// ViewInput is one camera to render this frame.
type ViewInput struct {
	ID common.ViewID
	// Transform is the camera's view → world matrix.
	Transform mgl32.Mat4
	// Projection is the camera's view → clip matrix.
	Projection mgl32.Mat4
	// Viewport is the physical size of the view's render targets.
	Viewport common.Extent2D
	Trace    uniform.TraceSettings
	// HasAttachments is false for views that only drive the per-view compute passes.
	HasAttachments bool
	// Present shows the view's final colour on the surface after the frame is submitted.
	Present bool
}

// FrameInput is everything the host hands the world for one frame. It is read during extract
// only.
type FrameInput struct {
	// Elapsed is the time since start in seconds.
	Elapsed float32
	// Delta is the time since the previous frame in seconds.
	Delta     float32
	Views     []ViewInput
	Bodies    []physics.Body
	Voxelize  []voxelization.Instance
	Animation []compute.AnimationInstruction
}

// FrameReport describes what one frame did.
type FrameReport struct {
	Frame   uint64    `json:"frame"`
	Started time.Time `json:"started"`
	// Global is the report of the global graph.
	Global graph.Report `json:"global"`
	// Views holds the view subgraph report of every view.
	Views map[common.ViewID]graph.Report `json:"views"`
	// DispatchSize is the number of occupied physics slots.
	DispatchSize uint32 `json:"dispatch_size"`
	// Excluded lists the bodies left out of physics this frame.
	Excluded []common.EntityID `json:"excluded,omitempty"`
	// AnimationCount is the number of animation instructions staged.
	AnimationCount uint32        `json:"animation_count"`
	Duration       time.Duration `json:"duration"`
}

// PassHook runs one of the post-processing nodes (tonemapping, fxaa, ui, upscaling) for a view.
// It receives the node's input slots through ctx and returns its outputs.
type PassHook func(ctx graph.Context, v View) (graph.Slots, error)

// Observer receives every frame report after the frame was submitted.
type Observer func(report FrameReport)
