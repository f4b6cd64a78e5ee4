package voxelization

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

type fixture struct {
	r     renderer.Renderer
	world voxel.Store
	v     Voxelizer
	frame uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(2)))
	t.Cleanup(r.Release)

	v := NewVoxelizer(r)
	t.Cleanup(v.Release)
	if err := r.RegisterPipelines(v.Pipeline()); err != nil {
		t.Fatalf("RegisterPipelines() error = %v", err)
	}
	world := voxel.NewStore(r, voxel.WithVoxelsPerMeter(4), voxel.WithGroup(GroupWorld))
	t.Cleanup(world.Release)
	if err := world.Load(voxel.EmptySource(32)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return &fixture{r: r, world: world, v: v}
}

func (f *fixture) run(t *testing.T, instances ...Instance) {
	t.Helper()
	f.frame++
	if _, err := f.world.Prepare(); err != nil {
		t.Fatalf("world Prepare() error = %v", err)
	}
	if err := f.v.Prepare(f.frame, f.world.Descriptor(), instances); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := f.r.BeginComputeFrame(); err != nil {
		t.Fatalf("BeginComputeFrame() error = %v", err)
	}
	if err := f.v.Execute(Frame{Renderer: f.r, World: f.world}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := f.r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame() error = %v", err)
	}
}

// materials counts voxels per material.
func (f *fixture) materials(t *testing.T) map[uint8]int {
	t.Helper()
	voxels, err := f.world.ReadVoxels()
	if err != nil {
		t.Fatalf("ReadVoxels() error = %v", err)
	}
	out := make(map[uint8]int)
	for _, v := range voxels {
		if !v.IsEmpty() {
			out[v.Material()]++
		}
	}
	return out
}

func sphere(id common.EntityID, m Material) Instance {
	return Instance{ID: id, Mesh: UVSphere(2, 24, 16), Transform: mgl32.Ident4(), Material: m}
}

func TestBoxVertices(t *testing.T) {
	data, count := Box(mgl32.Vec3{1, 1, 1}).Vertices()
	if count != 36 {
		t.Errorf("Vertices() count = %d, want 36", count)
	}
	if len(data) != 36*VertexStride {
		t.Errorf("len(Vertices()) = %d, want %d", len(data), 36*VertexStride)
	}
}

func TestUniformsEncoding(t *testing.T) {
	tests := []struct {
		name     string
		material Material
		want     uint32
	}{
		{"default", DefaultMaterial(), 10},
		{"indexed", IndexedMaterial(8, voxel.FlagSand), 8},
		{"textured", TexturedMaterial(nil, voxel.FlagNone), 255},
		{"reserved index", IndexedMaterial(255, voxel.FlagNone), 254},
		{"reserved index literal", Material{Kind: MaterialIndexed, Index: 255}, 254},
	}
	model := mgl32.Translate3D(1, 2, 3)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnmarshalUniforms(tt.material.Uniforms(model).Marshal())
			if got.Material != tt.want {
				t.Errorf("Material = %d, want %d", got.Material, tt.want)
			}
			if got.Flags != uint32(tt.material.Flags) {
				t.Errorf("Flags = %d, want %d", got.Flags, tt.material.Flags)
			}
			if got.Model != model {
				t.Errorf("Model = %v, want %v", got.Model, model)
			}
		})
	}
}

func TestCamerasResizeOnlyOnTextureSizeChange(t *testing.T) {
	r := renderer.NewRenderer(renderer.NewHeadlessBackend())
	t.Cleanup(r.Release)
	c := NewCameras(r)
	t.Cleanup(c.Release)

	steps := []struct {
		size        uint32
		vpm         float32
		wantResized bool
		wantResizes int
	}{
		{32, 4, true, 1},
		{32, 4, false, 1},
		{32, 8, false, 1},
		{64, 8, true, 2},
	}
	for _, s := range steps {
		d, err := voxel.NewDescriptor(s.size, s.vpm)
		if err != nil {
			t.Fatalf("NewDescriptor() error = %v", err)
		}
		resized, err := c.Update(d)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if resized != s.wantResized {
			t.Errorf("Update(%d, %v) = %v, want %v", s.size, s.vpm, resized, s.wantResized)
		}
		if c.Resizes() != s.wantResizes {
			t.Errorf("Resizes() = %d, want %d", c.Resizes(), s.wantResizes)
		}
		if c.Target().Width() != s.size {
			t.Errorf("Target().Width() = %d, want %d", c.Target().Width(), s.size)
		}
	}
}

func TestVoxelizeSphere(t *testing.T) {
	f := newFixture(t)
	f.run(t, sphere(1, IndexedMaterial(8, voxel.FlagNone)))

	got := f.materials(t)
	if got[8] == 0 {
		t.Fatalf("no voxels with material 8 after voxelization")
	}
	if len(got) != 1 {
		t.Errorf("materials = %v, want only material 8", got)
	}
	voxels, _ := f.world.ReadVoxels()
	if centre := voxels[f.world.Descriptor().Index(16, 16, 16)]; !centre.IsEmpty() {
		t.Errorf("centre voxel = %#x, want empty", centre)
	}
}

func TestVoxelizeWritesOnlyEmptyCells(t *testing.T) {
	f := newFixture(t)
	f.world.Fill(common.Vec3i{}, common.Vec3i{X: 31, Y: 31, Z: 31}, voxel.New(3, voxel.FlagNone))
	f.run(t, sphere(1, IndexedMaterial(8, voxel.FlagNone)))

	got := f.materials(t)
	if got[8] != 0 || got[3] != 32*32*32 {
		t.Errorf("materials = %v, want only material 3", got)
	}
}

func TestTexturedMaterialRespectsAlpha(t *testing.T) {
	tests := []struct {
		name  string
		alpha byte
		want  bool
	}{
		{"opaque", 255, true},
		{"transparent", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tex, err := f.r.CreateTexture("mesh texture", 1, 1, resource.TextureFormatRGBA8Unorm, resource.TextureUsageTextureBinding|resource.TextureUsageCopyDst)
			if err != nil {
				t.Fatalf("CreateTexture() error = %v", err)
			}
			t.Cleanup(tex.Release)
			if err := f.r.WriteTexture(tex, []byte{200, 100, 50, tt.alpha}); err != nil {
				t.Fatalf("WriteTexture() error = %v", err)
			}
			f.run(t, sphere(1, TexturedMaterial(tex, voxel.FlagNone)))

			if got := f.materials(t)[voxel.MaterialTexture] > 0; got != tt.want {
				t.Errorf("textured voxels written = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlappingEntitiesResolveByID(t *testing.T) {
	box := Box(mgl32.Vec3{1, 1, 1})
	for run := 0; run < 8; run++ {
		f := newFixture(t)
		f.run(t,
			Instance{ID: 9, Mesh: box, Transform: mgl32.Ident4(), Material: IndexedMaterial(5, voxel.FlagNone)},
			Instance{ID: 4, Mesh: box, Transform: mgl32.Ident4(), Material: IndexedMaterial(3, voxel.FlagNone)},
			Instance{ID: 6, Mesh: box, Transform: mgl32.Ident4(), Material: IndexedMaterial(7, voxel.FlagNone)},
		)
		got := f.materials(t)
		if got[3] == 0 || got[5] != 0 || got[7] != 0 {
			t.Fatalf("run %d: materials = %v, want only material 3 from the lowest ID", run, got)
		}
	}
}

func TestThreeDrawsPerInstance(t *testing.T) {
	f := newFixture(t)
	m := IndexedMaterial(8, voxel.FlagAnimation)
	f.run(t, sphere(1, m), sphere(2, m))

	if got := f.r.Stats().Draws[PipelineVoxelization]; got != 6 {
		t.Errorf("Draws[%s] = %d, want 6", PipelineVoxelization, got)
	}
}

func TestAbsentEntitiesReleasedOneFrameLate(t *testing.T) {
	f := newFixture(t)
	f.run(t, sphere(1, DefaultMaterial()))
	if f.v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", f.v.Len())
	}

	draws := f.r.Stats().Draws[PipelineVoxelization]
	f.run(t)
	if f.v.Len() != 1 {
		t.Errorf("Len() after absent frame = %d, want 1", f.v.Len())
	}
	if got := f.r.Stats().Draws[PipelineVoxelization]; got != draws {
		t.Errorf("Draws after absent frame = %d, want %d", got, draws)
	}

	f.run(t)
	if f.v.Len() != 0 {
		t.Errorf("Len() after second absent frame = %d, want 0", f.v.Len())
	}
}

func TestMeshChangeReplacesVertexBuffer(t *testing.T) {
	f := newFixture(t)
	inst := sphere(1, DefaultMaterial())
	f.run(t, inst)
	before := f.r.Stats().BufferAllocations

	f.run(t, inst)
	if got := f.r.Stats().BufferAllocations; got != before {
		t.Errorf("BufferAllocations with same mesh = %d, want %d", got, before)
	}
	inst.Mesh = Box(mgl32.Vec3{1, 1, 1})
	f.run(t, inst)
	if got := f.r.Stats().BufferAllocations; got != before+1 {
		t.Errorf("BufferAllocations after mesh change = %d, want %d", got, before+1)
	}
}

func TestExecuteSkipsWithoutWorld(t *testing.T) {
	r := renderer.NewRenderer(renderer.NewHeadlessBackend())
	t.Cleanup(r.Release)
	v := NewVoxelizer(r)
	t.Cleanup(v.Release)

	err := v.Execute(Frame{Renderer: r})
	if !errors.Is(err, graph.ErrSkipNode) {
		t.Errorf("Execute() without pipeline error = %v, want ErrSkipNode", err)
	}
	if err := r.RegisterPipelines(v.Pipeline()); err != nil {
		t.Fatalf("RegisterPipelines() error = %v", err)
	}
	world := voxel.NewStore(r)
	t.Cleanup(world.Release)
	err = v.Execute(Frame{Renderer: r, World: world})
	if !errors.Is(err, graph.ErrSkipNode) {
		t.Errorf("Execute() with unloaded world error = %v, want ErrSkipNode", err)
	}
}

func TestReflectedLayoutsMatch(t *testing.T) {
	p := NewPipeline()
	tests := []struct {
		group int
		want  shader.BindGroupLayout
	}{
		{GroupEntity, EntityLayout(GroupEntity)},
		{GroupCamera, CameraLayout(GroupCamera)},
	}
	for _, tt := range tests {
		got, ok := p.Shader(shader.ShaderTypeVertex).BindGroupLayout(tt.group)
		if !ok {
			t.Fatalf("BindGroupLayout(%d) missing", tt.group)
		}
		if len(got.Entries) != len(tt.want.Entries) {
			t.Fatalf("group %d entries = %d, want %d", tt.group, len(got.Entries), len(tt.want.Entries))
		}
		for i, e := range got.Entries {
			w := tt.want.Entries[i]
			if e.Binding != w.Binding || e.Kind != w.Kind || e.MinBindingSize != w.MinBindingSize {
				t.Errorf("group %d entry %d = %+v, want %+v", tt.group, i, e, w)
			}
		}
	}
}
