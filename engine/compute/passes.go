// Package compute holds the per-frame compute passes that mutate the voxel world: clear, automata
// and animation run once per frame in the global chain; rebuild and physics sit in the per-view
// subgraph but dispatch at most once per frame.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
)

// Pipeline keys of the compute passes.
const (
	PipelineClear     = "compute.clear"
	PipelineAutomata  = "compute.automata"
	PipelineAnimation = "compute.animation"
	PipelineRebuild   = "compute.rebuild"
	PipelinePhysics   = "compute.physics"
)

// Frame is the state a compute pass reads when it executes.
type Frame struct {
	// Number is the frame counter. Once-per-frame passes dispatch only for the first view of a number.
	Number uint64
	// Renderer records the dispatch.
	Renderer renderer.Renderer
	// Resources is the compute bind group, bound at group 0.
	Resources Resources
	// World is the voxel store, bound at group 1.
	World voxel.Store
	// PhysicsDispatch is the number of occupied physics slots.
	PhysicsDispatch uint32
}

// invocationsFunc returns the total invocation count per axis for a frame.
type invocationsFunc func(f Frame, d voxel.Descriptor) [3]uint32

// pass is the implementation of the Pass interface.
type pass struct {
	mu *sync.Mutex

	kind        graph.PassKind
	pipeline    pipeline.Pipeline
	invocations invocationsFunc

	oncePerFrame bool
	dispatched   bool
	lastFrame    uint64
}

// Pass is one compute node of the render graph.
type Pass interface {
	// Kind returns the graph node the pass runs as.
	Kind() graph.PassKind

	// Pipeline returns the compute pipeline to register with the renderer.
	Pipeline() pipeline.Pipeline

	// Execute records the pass's dispatch into the open compute frame.
	//
	// Parameters:
	//   - f: the frame state
	//
	// Returns:
	//   - error: graph.ErrSkipNode (wrapped) when the pipeline, world or bind groups are missing,
	//     or the renderer's error
	Execute(f Frame) error
}

var _ Pass = &pass{}

func newPass(kind graph.PassKind, key, source string, kernel pipeline.Kernel, invocations invocationsFunc, oncePerFrame bool) *pass {
	s := shader.MustShader(key, shader.ShaderTypeCompute, source)
	return &pass{
		mu:           &sync.Mutex{},
		kind:         kind,
		pipeline:     pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s), pipeline.WithHostKernel(kernel)),
		invocations:  invocations,
		oncePerFrame: oncePerFrame,
	}
}

func worldInvocations(_ Frame, d voxel.Descriptor) [3]uint32 {
	return [3]uint32{d.TextureSize, d.TextureSize, d.TextureSize}
}

// NewClearPass removes last frame's animated voxels and resets transient marks.
func NewClearPass() Pass {
	return newPass(graph.PassClear, PipelineClear, clearSource, clearKernel, worldInvocations, false)
}

// NewAutomataPass moves every sand voxel one cell down, or diagonally down when blocked.
func NewAutomataPass() Pass {
	return newPass(graph.PassAutomata, PipelineAutomata, automataSource, automataKernel, worldInvocations, false)
}

// NewAnimationPass writes the staged animation instructions into empty cells.
func NewAnimationPass() Pass {
	return newPass(graph.PassAnimation, PipelineAnimation, animationSource, animationKernel,
		func(f Frame, _ voxel.Descriptor) [3]uint32 {
			return [3]uint32{f.Resources.AnimationCount(), 1, 1}
		}, false)
}

// NewRebuildPass recounts the occupancy of every brick.
func NewRebuildPass() Pass {
	return newPass(graph.PassRebuild, PipelineRebuild, rebuildSource, rebuildKernel,
		func(_ Frame, d voxel.Descriptor) [3]uint32 {
			b := d.BricksPerAxis()
			return [3]uint32{b, b, b}
		}, true)
}

// NewPhysicsPass integrates every occupied physics slot against the world.
func NewPhysicsPass() Pass {
	return newPass(graph.PassPhysics, PipelinePhysics, physicsSource, physicsKernel,
		func(f Frame, _ voxel.Descriptor) [3]uint32 {
			return [3]uint32{f.PhysicsDispatch, 1, 1}
		}, true)
}

// NewPasses returns the five compute passes in graph order.
func NewPasses() []Pass {
	return []Pass{NewClearPass(), NewAutomataPass(), NewAnimationPass(), NewRebuildPass(), NewPhysicsPass()}
}

// Pipelines returns the pipelines of passes for registration.
func Pipelines(passes []Pass) []pipeline.Pipeline {
	out := make([]pipeline.Pipeline, len(passes))
	for i, p := range passes {
		out[i] = p.Pipeline()
	}
	return out
}

func (p *pass) Kind() graph.PassKind {
	return p.kind
}

func (p *pass) Pipeline() pipeline.Pipeline {
	return p.pipeline
}

func (p *pass) Execute(f Frame) error {
	key := p.pipeline.PipelineKey()
	switch {
	case f.Renderer == nil || f.Renderer.Pipeline(key) == nil:
		return fmt.Errorf("%w: pipeline %s not registered", graph.ErrSkipNode, key)
	case f.World == nil || !f.World.Loaded():
		return fmt.Errorf("%w: %s: no world loaded", graph.ErrSkipNode, key)
	case f.Resources == nil:
		return fmt.Errorf("%w: %s: no compute resources", graph.ErrSkipNode, key)
	}

	if p.oncePerFrame {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.dispatched && p.lastFrame == f.Number {
			return nil
		}
	}

	size := p.pipeline.Shader(shader.ShaderTypeCompute).WorkgroupSize()
	n := p.invocations(f, f.World.Descriptor())
	workgroups := [3]uint32{
		common.WorkgroupCount(n[0], size[0]),
		common.WorkgroupCount(n[1], size[1]),
		common.WorkgroupCount(n[2], size[2]),
	}
	groups := []bind_group_provider.BindGroupProvider{f.Resources.Provider(), f.World.Provider()}
	if err := f.Renderer.DispatchCompute(key, groups, workgroups); err != nil {
		if errors.Is(err, renderer.ErrBindGroupNotReady) {
			return fmt.Errorf("%w: %w", graph.ErrSkipNode, err)
		}
		return err
	}

	if p.oncePerFrame {
		p.dispatched = true
		p.lastFrame = f.Number
	}
	return nil
}
