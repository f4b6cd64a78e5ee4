// Package trace renders each view by marching camera rays through the voxel world, writing the
// view's colour, normal and position attachments.
package trace

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
)

// PipelineTrace is the compute pipeline key of the trace pass.
const PipelineTrace = "trace"

// Frame is the per-view state the trace pass dispatches with.
type Frame struct {
	Renderer renderer.Renderer
	World    voxel.Store
	Settings graph.Settings
	// View is nil for views without attachments.
	View View
}

type pass struct {
	pipeline pipeline.Pipeline
}

// Pass dispatches one invocation per attachment pixel.
type Pass interface {
	// Pipeline returns the compute pipeline to register with the renderer.
	Pipeline() pipeline.Pipeline

	// Execute records the view's trace dispatch into the open compute frame.
	//
	// Parameters:
	//   - f: the view's frame state
	//
	// Returns:
	//   - error: graph.ErrSkipNode (wrapped) when tracing is disabled or the pipeline, world or
	//     attachments are missing, or the renderer's error
	Execute(f Frame) error
}

var _ Pass = &pass{}

// NewPass builds the trace pass and its pipeline.
func NewPass() Pass {
	s := shader.MustShader(PipelineTrace, shader.ShaderTypeCompute, traceSource)
	return &pass{
		pipeline: pipeline.NewPipeline(PipelineTrace, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s), pipeline.WithHostKernel(traceKernel)),
	}
}

func (p *pass) Pipeline() pipeline.Pipeline {
	return p.pipeline
}

func (p *pass) Execute(f Frame) error {
	switch {
	case !f.Settings.Trace:
		return fmt.Errorf("%w: trace disabled", graph.ErrSkipNode)
	case f.Renderer == nil || f.Renderer.Pipeline(PipelineTrace) == nil:
		return fmt.Errorf("%w: pipeline %s not registered", graph.ErrSkipNode, PipelineTrace)
	case f.World == nil || !f.World.Loaded():
		return fmt.Errorf("%w: %s: no world loaded", graph.ErrSkipNode, PipelineTrace)
	case f.View == nil || f.View.Attachments() == nil:
		return fmt.Errorf("%w: %s: view has no attachments", graph.ErrSkipNode, PipelineTrace)
	}

	size := p.pipeline.Shader(shader.ShaderTypeCompute).WorkgroupSize()
	extent := f.View.Attachments().Size()
	workgroups := [3]uint32{
		common.WorkgroupCount(extent.Width, size[0]),
		common.WorkgroupCount(extent.Height, size[1]),
		1,
	}
	groups := []bind_group_provider.BindGroupProvider{f.World.Provider(), f.View.Provider()}
	if err := f.Renderer.DispatchCompute(PipelineTrace, groups, workgroups); err != nil {
		if errors.Is(err, renderer.ErrBindGroupNotReady) {
			return fmt.Errorf("%w: %w", graph.ErrSkipNode, err)
		}
		return err
	}
	return nil
}
