package voxelization

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// PipelineVoxelization is the render pipeline key of the voxelization pass.
const PipelineVoxelization = "voxelization"

// Instance is one entity to voxelize this frame.
type Instance struct {
	ID        common.EntityID
	Mesh      *Mesh
	Transform mgl32.Mat4
	Material  Material
}

// Frame is the per-frame state the voxelization pass draws with.
type Frame struct {
	Renderer renderer.Renderer
	World    voxel.Store
}

// entry is the GPU state of one voxelized entity.
type entry struct {
	provider    bind_group_provider.BindGroupProvider
	mesh        *Mesh
	vertices    resource.Buffer
	vertexCount uint32
	texture     resource.Texture
	lastSeen    uint64
}

func (e *entry) release() {
	e.provider.Release()
	if e.vertices != nil {
		e.vertices.Release()
	}
}

// voxelizer is the implementation of the Voxelizer interface.
type voxelizer struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	pipeline pipeline.Pipeline
	cameras  Cameras
	fallback resource.Texture

	entries map[common.EntityID]*entry
	frame   uint64
}

// Voxelizer writes meshes into the voxel world by rasterizing each one from three orthographic
// directions.
//
// Usage pattern:
//  1. Register Pipeline() with the renderer
//  2. Each frame call Prepare with the entities to voxelize
//  3. Call Execute inside an open compute frame
type Voxelizer interface {
	// Pipeline returns the render pipeline to register with the renderer.
	Pipeline() pipeline.Pipeline

	// Cameras returns the three voxelization cameras.
	Cameras() Cameras

	// Prepare uploads per-entity state for a frame. Entities absent for a whole frame are
	// released one frame later.
	//
	// Parameters:
	//   - frame: the frame number, strictly increasing
	//   - d: the world descriptor, used to fit the cameras
	//   - instances: the entities to voxelize this frame
	//
	// Returns:
	//   - error: if a GPU resource cannot be created or written
	Prepare(frame uint64, d voxel.Descriptor, instances []Instance) error

	// Execute records three draws per entity seen this frame.
	//
	// Parameters:
	//   - f: the frame state
	//
	// Returns:
	//   - error: graph.ErrSkipNode (wrapped) when the pipeline or world is unavailable, or the
	//     renderer's error
	Execute(f Frame) error

	// Len returns the number of entities holding GPU state.
	Len() int

	// Release frees every entity and the cameras.
	Release()
}

var _ Voxelizer = &voxelizer{}

// NewPipeline builds the voxelization render pipeline. Both stages come from one WGSL source.
func NewPipeline() pipeline.Pipeline {
	vs := shader.MustShader(PipelineVoxelization+".vertex", shader.ShaderTypeVertex, voxelizationSource)
	fs := shader.MustShader(PipelineVoxelization+".fragment", shader.ShaderTypeFragment, voxelizationSource)
	return pipeline.NewPipeline(PipelineVoxelization, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithCullMode(pipeline.CullModeNone),
		pipeline.WithTopology(pipeline.TopologyTriangleList),
		pipeline.WithTargetFormat(TargetFormat),
		pipeline.WithHostRaster(rasterKernel),
	)
}

// NewVoxelizer creates the voxelizer with its cameras and fallback texture. It panics if the GPU
// resources cannot be created.
func NewVoxelizer(r renderer.Renderer) Voxelizer {
	fallback, err := r.CreateTexture("voxelization fallback", 1, 1, resource.TextureFormatRGBA8Unorm, resource.TextureUsageTextureBinding|resource.TextureUsageCopyDst)
	if err != nil {
		panic(fmt.Sprintf("voxelization: fallback texture: %v", err))
	}
	if err := r.WriteTexture(fallback, []byte{255, 255, 255, 255}); err != nil {
		panic(fmt.Sprintf("voxelization: fallback texture: %v", err))
	}
	return &voxelizer{
		mu:       &sync.Mutex{},
		renderer: r,
		pipeline: NewPipeline(),
		cameras:  NewCameras(r),
		fallback: fallback,
		entries:  make(map[common.EntityID]*entry),
	}
}

func (v *voxelizer) Pipeline() pipeline.Pipeline {
	return v.pipeline
}

func (v *voxelizer) Cameras() Cameras {
	return v.cameras
}

func (v *voxelizer) textureFor(m Material) resource.Texture {
	if m.Kind == MaterialTextured && m.Texture != nil {
		return m.Texture
	}
	return v.fallback
}

func (v *voxelizer) Prepare(frame uint64, d voxel.Descriptor, instances []Instance) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.frame = frame
	for id, e := range v.entries {
		if e.lastSeen+1 < frame {
			e.release()
			delete(v.entries, id)
		}
	}
	if len(instances) == 0 {
		return nil
	}
	if _, err := v.cameras.Update(d); err != nil {
		return err
	}

	writes := make([]renderer.BufferWrite, 0, len(instances))
	for _, inst := range instances {
		if inst.Mesh == nil {
			continue
		}
		e, err := v.upsert(inst)
		if err != nil {
			return err
		}
		e.lastSeen = frame
		writes = append(writes, renderer.BufferWrite{
			Provider: e.provider,
			Binding:  BindingUniforms,
			Data:     inst.Material.Uniforms(inst.Transform).Marshal(),
		})
	}
	return v.renderer.WriteBuffers(writes)
}

// upsert returns the entry of an instance, creating it or refreshing its mesh and texture.
func (v *voxelizer) upsert(inst Instance) (*entry, error) {
	tex := v.textureFor(inst.Material)
	e, ok := v.entries[inst.ID]
	if !ok {
		p := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("voxelization entity %d", inst.ID),
			bind_group_provider.WithSharedTexture(BindingTexture, tex))
		if err := v.renderer.InitBindGroup(p, EntityLayout(GroupEntity), nil, nil); err != nil {
			p.Release()
			return nil, fmt.Errorf("voxelization: entity %d: %w", inst.ID, err)
		}
		e = &entry{provider: p, texture: tex}
		v.entries[inst.ID] = e
	}

	if e.texture != tex {
		e.provider.ShareTexture(BindingTexture, tex)
		if err := v.renderer.RebindGroup(e.provider); err != nil {
			return nil, fmt.Errorf("voxelization: entity %d: %w", inst.ID, err)
		}
		e.texture = tex
	}

	if e.mesh != inst.Mesh {
		data, count := inst.Mesh.Vertices()
		buf, err := v.renderer.CreateBuffer(fmt.Sprintf("voxelization entity %d vertices", inst.ID), uint64(max(len(data), 4)), resource.BufferUsageVertex|resource.BufferUsageCopyDst)
		if err != nil {
			return nil, fmt.Errorf("voxelization: entity %d vertices: %w", inst.ID, err)
		}
		if len(data) > 0 {
			if err := v.renderer.WriteBuffer(buf, 0, data); err != nil {
				buf.Release()
				return nil, fmt.Errorf("voxelization: entity %d vertices: %w", inst.ID, err)
			}
		}
		if e.vertices != nil {
			e.vertices.Release()
		}
		e.mesh, e.vertices, e.vertexCount = inst.Mesh, buf, count
	}
	return e, nil
}

func (v *voxelizer) Execute(f Frame) error {
	if f.Renderer.Pipeline(PipelineVoxelization) == nil {
		return fmt.Errorf("%w: %s pipeline not registered", graph.ErrSkipNode, PipelineVoxelization)
	}
	if f.World == nil || !f.World.Loaded() {
		return fmt.Errorf("%w: world not loaded", graph.ErrSkipNode)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	target := v.cameras.Target()
	for _, e := range v.drawOrder() {
		for axis := range axisViews {
			groups := []bind_group_provider.BindGroupProvider{f.World.Provider(), e.provider, v.cameras.Provider(axis)}
			if err := f.Renderer.Draw(PipelineVoxelization, target, groups, e.vertices, e.vertexCount); err != nil {
				if errors.Is(err, renderer.ErrBindGroupNotReady) {
					return fmt.Errorf("%w: %v", graph.ErrSkipNode, err)
				}
				return err
			}
		}
	}
	return nil
}

// drawOrder returns the entries prepared this frame sorted by entity ID. The first material to
// reach a voxel wins, so overlapping entities resolve the same way on every run.
func (v *voxelizer) drawOrder() []*entry {
	ids := make([]common.EntityID, 0, len(v.entries))
	for id, e := range v.entries {
		if e.lastSeen == v.frame && e.vertexCount > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]*entry, len(ids))
	for i, id := range ids {
		out[i] = v.entries[id]
	}
	return out
}

func (v *voxelizer) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

func (v *voxelizer) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, e := range v.entries {
		e.release()
		delete(v.entries, id)
	}
	v.cameras.Release()
	v.fallback.Release()
}
