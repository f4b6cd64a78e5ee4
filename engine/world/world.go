// Package world owns the GPU-resident voxel world and everything a frame touches: the world store,
// the physics allocator, the compute resources, the voxelizer and per-view state. Frame runs one
// extract → prepare → render cycle and walks the render graph.
package world

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/physics"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/trace"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
)

const (
	defaultBufferLength = 1_000_000
	defaultWorkers      = 4
)

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("world: closed")

// world is the implementation of the World interface.
type world struct {
	mu *sync.Mutex

	renderer renderer.Renderer

	// configuration
	source          *voxel.Source
	voxelsPerMeter  float32
	physicsLength   uint64
	animationLength uint64
	workers         int
	hooks           map[graph.PassKind]PassHook
	observers       []Observer

	settings graph.Settings

	store      voxel.Store
	allocator  physics.Allocator
	resources  compute.Resources
	passes     map[graph.PassKind]compute.Pass
	voxelizer  voxelization.Voxelizer
	tracer     trace.Pass
	stream     uniform.Stream
	globalDAG  *graph.Graph
	viewDAG    *graph.Graph
	pool       worker.DynamicWorkerPool
	views      map[common.ViewID]*viewState
	frame      uint64
	physicsOut map[common.EntityID]physics.Body
	closed     bool
}

// World is the voxel renderer core driven once per frame by the host.
//
// Usage pattern:
//  1. NewWorld with a renderer and options
//  2. LoadWorld (or WithSource)
//  3. Frame once per displayed frame with the host's views, bodies and meshes
//  4. Read PhysicsResults to move host entities
type World interface {
	// LoadWorld replaces the voxel world. The voxelization cameras follow the new size on the
	// next frame.
	//
	// Parameters:
	//   - src: the world source
	//
	// Returns:
	//   - error: if the source cannot be opened or the GPU buffers cannot be created
	LoadWorld(src voxel.Source) error

	// Store returns the voxel world store. Edits made through it are applied during the next
	// frame's prepare.
	Store() voxel.Store

	// Allocator returns the physics allocator.
	Allocator() physics.Allocator

	// Voxelizer returns the mesh voxelizer.
	Voxelizer() voxelization.Voxelizer

	// Settings returns the render graph toggles.
	Settings() graph.Settings

	// SetSettings replaces the render graph toggles from the next frame on.
	SetSettings(s graph.Settings)

	// Frame runs extract, prepare and render for one frame.
	//
	// Parameters:
	//   - in: the host state of this frame
	//
	// Returns:
	//   - FrameReport: what every node did
	//   - error: only for device failures; skipped and failed nodes are in the report
	Frame(in FrameInput) (FrameReport, error)

	// PhysicsResults returns the simulated bodies from the latest completed readback, which
	// belongs to an earlier frame.
	PhysicsResults() map[common.EntityID]physics.Body

	// View returns the state of a view seen in the last frame.
	View(id common.ViewID) (View, bool)

	// Views returns the number of views with state.
	Views() int

	// SetPhysicsBufferLength resizes the physics buffer to n u32 elements. Slots are reassigned on
	// the next frame.
	SetPhysicsBufferLength(n uint64) error

	// Close releases every GPU resource the world owns. The renderer stays open.
	Close()
}

var _ World = &world{}

// NewWorld creates the world's GPU resources and registers every pipeline it dispatches.
//
// Parameters:
//   - r: the renderer to drive
//   - options: functional options to configure the world
//
// Returns:
//   - World: the new world
//   - error: if pipeline registration or the initial load fails
func NewWorld(r renderer.Renderer, options ...WorldBuilderOption) (World, error) {
	w := &world{
		mu:              &sync.Mutex{},
		renderer:        r,
		voxelsPerMeter:  4,
		physicsLength:   defaultBufferLength,
		animationLength: defaultBufferLength,
		workers:         defaultWorkers,
		hooks:           make(map[graph.PassKind]PassHook),
		settings:        graph.DefaultSettings(),
		passes:          make(map[graph.PassKind]compute.Pass),
		stream:          uniform.NewStream(),
		globalDAG:       graph.DefaultGlobalGraph(),
		viewDAG:         graph.DefaultViewGraph(),
		views:           make(map[common.ViewID]*viewState),
		physicsOut:      make(map[common.EntityID]physics.Body),
	}
	for _, opt := range options {
		opt(w)
	}

	passes := compute.NewPasses()
	for _, p := range passes {
		w.passes[p.Kind()] = p
	}
	w.voxelizer = voxelization.NewVoxelizer(r)
	w.tracer = trace.NewPass()
	pipelines := append(compute.Pipelines(passes), w.voxelizer.Pipeline(), w.tracer.Pipeline())
	if err := r.RegisterPipelines(pipelines...); err != nil {
		w.voxelizer.Release()
		return nil, fmt.Errorf("world: register pipelines: %w", err)
	}
	common.Logger().Info("world pipelines registered", "count", len(pipelines))

	w.store = voxel.NewStore(r, voxel.WithVoxelsPerMeter(w.voxelsPerMeter))
	w.allocator = physics.NewAllocator(r, physics.WithBufferLength(w.physicsLength))
	w.resources = compute.NewResources(r, w.allocator.Buffer(), compute.WithAnimationLength(w.animationLength))
	w.pool = worker.NewDynamicWorkerPool(w.workers, 256, 1*time.Second)

	if w.source != nil {
		if err := w.LoadWorld(*w.source); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *world) LoadWorld(src voxel.Source) error {
	return w.store.Load(src)
}

func (w *world) Store() voxel.Store {
	return w.store
}

func (w *world) Allocator() physics.Allocator {
	return w.allocator
}

func (w *world) Voxelizer() voxelization.Voxelizer {
	return w.voxelizer
}

func (w *world) Settings() graph.Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

func (w *world) SetSettings(s graph.Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings = s
}

func (w *world) SetPhysicsBufferLength(n uint64) error {
	changed, err := w.allocator.SetCapacity(n)
	if err != nil {
		return fmt.Errorf("world: resize physics buffer: %w", err)
	}
	if !changed {
		return nil
	}
	return w.resources.SetPhysicsBuffer(w.allocator.Buffer())
}

func (w *world) PhysicsResults() map[common.EntityID]physics.Body {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[common.EntityID]physics.Body, len(w.physicsOut))
	for id, b := range w.physicsOut {
		out[id] = b
	}
	return out
}

func (w *world) View(id common.ViewID) (View, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.views[id]
	if !ok {
		return nil, false
	}
	return v, true
}

func (w *world) Views() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.views)
}

// extracted is the frame's copy of the host input.
type extracted struct {
	frame    uint64
	settings graph.Settings
	in       FrameInput
	views    []*viewState
}

func (w *world) Frame(in FrameInput) (FrameReport, error) {
	start := time.Now()
	x, err := w.extract(in)
	if err != nil {
		return FrameReport{}, err
	}
	report := FrameReport{Frame: x.frame, Started: start, Views: make(map[common.ViewID]graph.Report, len(x.views))}
	if err := w.prepare(x, &report); err != nil {
		return report, err
	}
	if err := w.render(x, &report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	w.mu.Lock()
	observers := slices.Clone(w.observers)
	w.mu.Unlock()
	for _, o := range observers {
		o(report)
	}
	return report, nil
}

// extract copies the host input and resolves the view states of this frame. Views missing from
// the input are released.
func (w *world) extract(in FrameInput) (extracted, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return extracted{}, ErrClosed
	}
	w.frame++
	x := extracted{frame: w.frame, settings: w.settings, in: in}
	x.in.Views = slices.Clone(in.Views)
	slices.SortStableFunc(x.in.Views, func(a, b ViewInput) int { return cmp.Compare(a.ID, b.ID) })
	x.in.Bodies = slices.Clone(in.Bodies)
	x.in.Voxelize = slices.Clone(in.Voxelize)
	x.in.Animation = slices.Clone(in.Animation)

	seen := make(map[common.ViewID]struct{}, len(x.in.Views))
	for _, vi := range x.in.Views {
		if _, dup := seen[vi.ID]; dup {
			continue
		}
		seen[vi.ID] = struct{}{}
		v, ok := w.views[vi.ID]
		if !ok {
			v = newViewState(vi.ID)
			w.views[vi.ID] = v
		}
		x.views = append(x.views, v)
	}
	for id, v := range w.views {
		if _, ok := seen[id]; !ok {
			v.release()
			delete(w.views, id)
		}
	}
	return x, nil
}

// prepare stages every upload of the frame: readback, world edits, uniforms, physics slots,
// animation instructions, voxelization entities and per-view targets.
func (w *world) prepare(x extracted, report *FrameReport) error {
	w.renderer.Poll()
	if res, ok := w.allocator.TakeReadback(); ok {
		if res.Err != nil {
			common.Logger().Warn("physics readback failed", "frame", res.Frame, "err", res.Err)
		} else {
			w.mu.Lock()
			w.physicsOut = res.Bodies
			w.mu.Unlock()
		}
	}

	if _, err := w.store.Prepare(); err != nil {
		return fmt.Errorf("world: prepare voxels: %w", err)
	}

	global := w.stream.BeginFrame(x.in.Elapsed, x.in.Delta)
	if err := w.resources.WriteUniforms(global); err != nil {
		return fmt.Errorf("world: prepare uniforms: %w", err)
	}

	alloc, err := w.allocator.Prepare(x.in.Bodies)
	if err != nil {
		return fmt.Errorf("world: prepare physics: %w", err)
	}
	report.DispatchSize = alloc.DispatchSize
	report.Excluded = alloc.Excluded

	count, err := w.resources.SetAnimation(x.in.Animation)
	if err != nil {
		return fmt.Errorf("world: prepare animation: %w", err)
	}
	report.AnimationCount = count

	if w.store.Loaded() {
		if err := w.voxelizer.Prepare(x.frame, w.store.Descriptor(), x.in.Voxelize); err != nil {
			return fmt.Errorf("world: prepare voxelization: %w", err)
		}
	}

	w.prepareViews(x)
	if pruned := w.stream.EndFrame(); pruned > 0 {
		common.Logger().Debug("view history pruned", "frame", x.frame, "views", pruned)
	}
	return nil
}

// prepareViews computes every view's uniforms in order, then resizes and uploads the views in
// parallel. A view that fails keeps rendering without attachments this frame.
func (w *world) prepareViews(x extracted) {
	uniforms := make([]uniform.TraceUniforms, len(x.views))
	inputs := make([]ViewInput, len(x.views))
	for i, v := range x.views {
		for _, vi := range x.in.Views {
			if vi.ID == v.id {
				inputs[i] = vi
				break
			}
		}
		uniforms[i] = w.stream.View(v.id, inputs[i].Transform, inputs[i].Projection, inputs[i].Trace)
	}

	var wg sync.WaitGroup
	for i, v := range x.views {
		wg.Add(1)
		w.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				if err := v.prepare(w.renderer, inputs[i], uniforms[i]); err != nil {
					common.Logger().Warn("view prepare failed", "view", v.id, "frame", x.frame, "err", err)
					v.release()
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// render records the frame's graph into one compute frame, submits it and starts the physics
// readback.
func (w *world) render(x extracted, report *FrameReport) error {
	if err := w.renderer.BeginComputeFrame(); err != nil {
		return fmt.Errorf("world: begin frame: %w", err)
	}
	ctx := graph.Context{Settings: x.settings, Frame: x.frame}
	report.Global = graph.Run(w.globalDAG, ctx, func(ctx graph.Context) (graph.Slots, error) {
		return w.runGlobal(ctx, x, report)
	})

	if report.DispatchSize > 0 && x.settings.Physics {
		if _, err := w.allocator.RecordCopy(); err != nil {
			common.Logger().Warn("physics copy failed", "frame", x.frame, "err", err)
		}
	}
	if err := w.renderer.EndComputeFrame(); err != nil {
		return fmt.Errorf("world: submit frame %d: %w", x.frame, err)
	}
	w.allocator.ScheduleReadback()

	for _, v := range x.views {
		if !v.Input().Present {
			continue
		}
		out := v.Output()
		if out == nil {
			continue
		}
		if err := w.renderer.Present(out); err != nil {
			return fmt.Errorf("world: present view %d: %w", v.id, err)
		}
		break
	}
	return nil
}

func (w *world) computeFrame(frame uint64, dispatch uint32) compute.Frame {
	return compute.Frame{Number: frame, Renderer: w.renderer, Resources: w.resources, World: w.store, PhysicsDispatch: dispatch}
}

func (w *world) runGlobal(ctx graph.Context, x extracted, report *FrameReport) (graph.Slots, error) {
	switch ctx.Kind {
	case graph.PassClear, graph.PassAutomata, graph.PassAnimation:
		return nil, w.passes[ctx.Kind].Execute(w.computeFrame(x.frame, report.DispatchSize))
	case graph.PassVoxelization:
		return nil, w.voxelizer.Execute(voxelization.Frame{Renderer: w.renderer, World: w.store})
	case graph.PassCameraDriver:
		if len(x.views) == 0 {
			return nil, fmt.Errorf("%w: no active views", graph.ErrSkipNode)
		}
		for _, v := range x.views {
			vctx := graph.Context{Settings: x.settings, Frame: x.frame, View: v.id}
			report.Views[v.id] = graph.Run(w.viewDAG, vctx, func(ctx graph.Context) (graph.Slots, error) {
				return w.runView(ctx, x, v, report)
			})
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s is not a global node", graph.ErrSkipNode, ctx.Kind)
}

func (w *world) runView(ctx graph.Context, x extracted, v *viewState, report *FrameReport) (graph.Slots, error) {
	switch ctx.Kind {
	case graph.PassAttachments:
		set := v.Attachments()
		if set == nil {
			return nil, fmt.Errorf("%w: view %d has no attachments", graph.ErrSkipNode, v.id)
		}
		return set.Slots(), nil
	case graph.PassRebuild, graph.PassPhysics:
		return nil, w.passes[ctx.Kind].Execute(w.computeFrame(x.frame, report.DispatchSize))
	case graph.PassTrace:
		for _, slot := range []graph.SlotName{graph.SlotNormal, graph.SlotPosition, graph.SlotColor} {
			if ctx.Inputs[slot] == nil {
				return nil, fmt.Errorf("%w: view %d is missing the %s attachment", graph.ErrSkipNode, v.id, slot)
			}
		}
		err := w.tracer.Execute(trace.Frame{Renderer: w.renderer, World: w.store, Settings: ctx.Settings, View: v.traceView()})
		if err != nil {
			return nil, err
		}
		return graph.Slots{graph.SlotColor: ctx.Inputs[graph.SlotColor]}, nil
	case graph.PassTonemapping, graph.PassFxaa, graph.PassUi, graph.PassUpscaling:
		return w.runPost(ctx, v)
	}
	return nil, fmt.Errorf("%w: %s is not a view node", graph.ErrSkipNode, ctx.Kind)
}

// runPost runs a post-processing node through its hook, or forwards the colour input. Upscaling
// records the view's final colour target.
func (w *world) runPost(ctx graph.Context, v *viewState) (graph.Slots, error) {
	w.mu.Lock()
	hook := w.hooks[ctx.Kind]
	w.mu.Unlock()

	var out graph.Slots
	if hook != nil {
		var err error
		if out, err = hook(ctx, v); err != nil {
			return nil, err
		}
	} else {
		color := ctx.Inputs[graph.SlotColor]
		if color == nil {
			return nil, fmt.Errorf("%w: view %d has no colour input", graph.ErrSkipNode, v.id)
		}
		out = graph.Slots{graph.SlotColor: color}
	}
	if ctx.Kind == graph.PassUpscaling {
		if color := out[graph.SlotColor]; color != nil {
			v.SetOutput(color)
		} else {
			v.SetOutput(ctx.Inputs[graph.SlotColor])
		}
	}
	return out, nil
}

func (w *world) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	views := w.views
	w.views = make(map[common.ViewID]*viewState)
	w.mu.Unlock()

	for _, v := range views {
		v.release()
	}
	w.pool.Stop()
	w.voxelizer.Release()
	w.resources.Release()
	w.allocator.Release()
	w.store.Release()
}

// Pipelines returns every pipeline a world registers, for tools that build a renderer first.
func Pipelines() []pipeline.Pipeline {
	passes := compute.NewPasses()
	return append(compute.Pipelines(passes), voxelization.NewPipeline(), trace.NewPass().Pipeline())
}
