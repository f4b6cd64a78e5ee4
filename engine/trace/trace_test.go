package trace

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/attachment"
	"github.com/Carmen-Shannon/oxy-voxel/engine/camera"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

type fixture struct {
	r           renderer.Renderer
	world       voxel.Store
	attachments attachment.Set
	view        View
	pass        Pass
	stream      uniform.Stream
	camera      camera.Camera
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(2)))
	t.Cleanup(r.Release)

	p := NewPass()
	if err := r.RegisterPipelines(p.Pipeline()); err != nil {
		t.Fatalf("RegisterPipelines() error = %v", err)
	}
	world := voxel.NewStore(r, voxel.WithVoxelsPerMeter(4), voxel.WithGroup(GroupWorld))
	t.Cleanup(world.Release)
	if err := world.Load(voxel.EmptySource(32)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	set := attachment.NewSet(r)
	t.Cleanup(set.Release)
	if _, err := set.Resize(common.Extent2D{Width: 4, Height: 4}); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	v, err := NewView(r, 1, set)
	if err != nil {
		t.Fatalf("NewView() error = %v", err)
	}
	t.Cleanup(v.Release)

	// Looks straight down from just below the world ceiling.
	cam := camera.NewCamera(
		camera.WithPosition(mgl32.Vec3{0, 3, 0}),
		camera.WithTarget(mgl32.Vec3{0, -10, 0}),
		camera.WithUp(mgl32.Vec3{0, 0, -1}),
		camera.WithProjection(camera.OrthographicProjection(7, 7, 0.1, 20)),
	)
	return &fixture{r: r, world: world, attachments: set, view: v, pass: p, stream: uniform.NewStream(), camera: cam}
}

// floor fills voxel rows y 0..7 with material 3.
func (f *fixture) floor(t *testing.T) {
	t.Helper()
	f.world.Fill(common.Vec3i{}, common.Vec3i{X: 31, Y: 7, Z: 31}, voxel.New(3, voxel.FlagNone))
	if _, err := f.world.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
}

// setBricks writes the brick occupancy, or marks every brick occupied when all is set.
func (f *fixture) setBricks(t *testing.T, all bool) {
	t.Helper()
	d := f.world.Descriptor()
	voxels, err := f.world.ReadVoxels()
	if err != nil {
		t.Fatalf("ReadVoxels() error = %v", err)
	}
	bricks := make([]uint32, d.BrickCount())
	for i, v := range voxels {
		c := d.Coord(uint64(i))
		b := d.BrickIndex(uint32(c.X), uint32(c.Y), uint32(c.Z))
		if all || !v.IsEmpty() {
			bricks[b]++
		}
	}
	if err := f.r.WriteBuffer(f.world.Provider().Buffer(voxel.BindingBricks), 0, common.SliceToBytes(bricks)); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
}

func (f *fixture) run(t *testing.T, settings uniform.TraceSettings) {
	t.Helper()
	f.stream.BeginFrame(0, 0)
	u := f.stream.View(f.view.ID(), f.camera.Transform(), f.camera.ProjectionMatrix(), settings)
	if err := f.view.Update(u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := f.r.BeginComputeFrame(); err != nil {
		t.Fatalf("BeginComputeFrame() error = %v", err)
	}
	frame := Frame{Renderer: f.r, World: f.world, Settings: graph.DefaultSettings(), View: f.view}
	if err := f.pass.Execute(frame); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if err := f.r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame() error = %v", err)
	}
}

func texel(t *testing.T, tex resource.Texture, x, y uint32) [4]float32 {
	t.Helper()
	img, ok := tex.(pipeline.HostImage)
	if !ok {
		t.Fatalf("%s is not a host image", tex.Label())
	}
	return img.Load(x, y)
}

func near(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a-b))) <= tolerance
}

func TestTraceHitsFloor(t *testing.T) {
	f := newFixture(t)
	f.floor(t)
	f.setBricks(t, false)
	f.run(t, uniform.DefaultTraceSettings())

	want := MaterialColor(3).Mul(ambient + (1-ambient)*sun.Y())
	for y := range uint32(4) {
		for x := range uint32(4) {
			pos := texel(t, f.attachments.Position(), x, y)
			if pos[3] != 1 || !near(pos[1], -2, 1e-3) {
				t.Errorf("position(%d, %d) = %v, want y -2 and w 1", x, y, pos)
			}
			n := texel(t, f.attachments.Normal(), x, y)
			if n[0] != 0 || n[1] != 1 || n[2] != 0 || n[3] == 0 {
				t.Errorf("normal(%d, %d) = %v, want (0, 1, 0) with steps", x, y, n)
			}
			c := texel(t, f.attachments.Color(), x, y)
			for i := range 3 {
				if !near(c[i], want[i], 2e-3) {
					t.Errorf("color(%d, %d) = %v, want %v", x, y, c, want)
					break
				}
			}
		}
	}
}

func TestTraceMissWritesSky(t *testing.T) {
	f := newFixture(t)
	f.run(t, uniform.DefaultTraceSettings())

	pos := texel(t, f.attachments.Position(), 1, 1)
	if pos != [4]float32{} {
		t.Errorf("position = %v, want zero for a miss", pos)
	}
	c := texel(t, f.attachments.Color(), 1, 1)
	if !near(c[0], 0.9, 2e-3) || !near(c[2], 1.0, 2e-3) || c[3] != 1 {
		t.Errorf("color = %v, want horizon sky", c)
	}
}

func TestBrickSkippingMatchesFullMarch(t *testing.T) {
	f := newFixture(t)
	f.floor(t)

	f.setBricks(t, true)
	f.run(t, uniform.DefaultTraceSettings())
	fullPos := texel(t, f.attachments.Position(), 2, 2)
	fullSteps := texel(t, f.attachments.Normal(), 2, 2)[3]

	f.setBricks(t, false)
	f.run(t, uniform.DefaultTraceSettings())
	skipPos := texel(t, f.attachments.Position(), 2, 2)
	skipSteps := texel(t, f.attachments.Normal(), 2, 2)[3]

	if skipPos != fullPos {
		t.Errorf("position with brick skipping = %v, want %v", skipPos, fullPos)
	}
	if skipSteps >= fullSteps {
		t.Errorf("steps with brick skipping = %v, want fewer than %v", skipSteps, fullSteps)
	}
}

func TestShowRayStepsWritesGreyscale(t *testing.T) {
	f := newFixture(t)
	f.floor(t)
	f.setBricks(t, false)
	settings := uniform.DefaultTraceSettings()
	settings.ShowRaySteps = true
	f.run(t, settings)

	c := texel(t, f.attachments.Color(), 0, 0)
	steps := texel(t, f.attachments.Normal(), 0, 0)[3]
	if want := steps / 96; !near(c[0], want, 2e-3) || c[0] != c[1] || c[1] != c[2] {
		t.Errorf("color = %v, want grey %v", c, want)
	}
}

func TestUpdateRebindsResizedAttachments(t *testing.T) {
	f := newFixture(t)
	f.floor(t)
	f.setBricks(t, false)
	if _, err := f.attachments.Resize(common.Extent2D{Width: 8, Height: 6}); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	f.run(t, uniform.DefaultTraceSettings())

	if got := f.r.Stats().Dispatches[PipelineTrace]; got != 1 {
		t.Errorf("Dispatches[%s] = %d, want 1", PipelineTrace, got)
	}
	for y := range uint32(6) {
		for x := range uint32(8) {
			if c := texel(t, f.attachments.Color(), x, y); c[3] != 1 {
				t.Fatalf("color(%d, %d) = %v, want written", x, y, c)
			}
		}
	}
}

func TestExecuteSkips(t *testing.T) {
	f := newFixture(t)
	disabled := graph.DefaultSettings()
	disabled.Trace = false
	tests := []struct {
		name  string
		frame Frame
	}{
		{"disabled", Frame{Renderer: f.r, World: f.world, Settings: disabled, View: f.view}},
		{"no attachments", Frame{Renderer: f.r, World: f.world, Settings: graph.DefaultSettings()}},
		{"no world", Frame{Renderer: f.r, Settings: graph.DefaultSettings(), View: f.view}},
		{"unregistered", Frame{Renderer: renderer.NewRenderer(renderer.NewHeadlessBackend()), World: f.world, Settings: graph.DefaultSettings(), View: f.view}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.pass.Execute(tt.frame); !errors.Is(err, graph.ErrSkipNode) {
				t.Errorf("Execute() error = %v, want ErrSkipNode", err)
			}
		})
	}
}

func TestMaterialColorTextured(t *testing.T) {
	if got, want := MaterialColor(voxel.MaterialTexture), (mgl32.Vec3{0.8, 0.8, 0.8}); got != want {
		t.Errorf("MaterialColor(texture) = %v, want %v", got, want)
	}
	if MaterialColor(3) == MaterialColor(4) {
		t.Errorf("MaterialColor(3) == MaterialColor(4), want distinct colours")
	}
}

func TestReflectedLayoutMatches(t *testing.T) {
	got, ok := NewPass().Pipeline().Shader(shader.ShaderTypeCompute).BindGroupLayout(GroupView)
	if !ok {
		t.Fatalf("BindGroupLayout(%d) missing", GroupView)
	}
	want := ViewLayout(GroupView)
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entries = %d, want %d", len(got.Entries), len(want.Entries))
	}
	for i, e := range got.Entries {
		w := want.Entries[i]
		if e.Binding != w.Binding || e.Kind != w.Kind || e.MinBindingSize != w.MinBindingSize || e.Format != w.Format || e.Access != w.Access {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
	}
}
