package world

import (
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/physics"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
	"github.com/go-gl/mathgl/mgl32"
)

const testBufferLength = physics.HeaderWords + 64*physics.SlotWords

func newTestWorld(t *testing.T, options ...WorldBuilderOption) (World, renderer.Renderer) {
	t.Helper()
	r := renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(2)))
	t.Cleanup(r.Release)
	opts := append([]WorldBuilderOption{
		WithSource(voxel.EmptySource(32)),
		WithVoxelsPerMeter(4),
		WithPhysicsBufferLength(testBufferLength),
		WithAnimationBufferLength(1024),
		WithWorkers(2),
	}, options...)
	w, err := NewWorld(r, opts...)
	if err != nil {
		t.Fatalf("NewWorld() error = %v", err)
	}
	t.Cleanup(w.Close)
	return w, r
}

func testView(id common.ViewID, attachments bool) ViewInput {
	return ViewInput{
		ID:             id,
		Transform:      mgl32.Translate3D(0, 3, 0).Mul4(mgl32.HomogRotate3DX(-math.Pi / 2)),
		Projection:     mgl32.Ortho(-3.5, 3.5, -3.5, 3.5, 0.1, 20),
		Viewport:       common.Extent2D{Width: 4, Height: 4},
		Trace:          uniform.DefaultTraceSettings(),
		HasAttachments: attachments,
	}
}

func bodies(n int) []physics.Body {
	out := make([]physics.Body, n)
	for i := range out {
		out[i] = physics.Body{
			ID:       common.EntityID(i + 1),
			Position: mgl32.Vec3{float32(i) * 0.5, 1, 0},
			Velocity: mgl32.Vec3{1, 0, 0},
			HalfSize: mgl32.Vec3{0.1, 0.1, 0.1},
			Effect:   physics.CollisionNone,
		}
	}
	return out
}

func frame(t *testing.T, w World, in FrameInput) FrameReport {
	t.Helper()
	report, err := w.Frame(in)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	return report
}

// denseSlots checks that ids own exactly the slots [0, len(ids)).
func denseSlots(t *testing.T, table physics.SlotTable, ids []common.EntityID) {
	t.Helper()
	var slots []uint32
	for _, id := range ids {
		slot, ok := table.Slot(id)
		if !ok {
			t.Errorf("Slot(%d) not found", id)
			continue
		}
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	for i, slot := range slots {
		if slot != uint32(i) {
			t.Fatalf("slots = %v, want a dense [0,%d)", slots, len(ids))
		}
	}
}

func TestDispatchSizeFollowsBodies(t *testing.T) {
	w, _ := newTestWorld(t, WithSource(voxel.EmptySource(64)))
	views := []ViewInput{testView(1, false)}

	all := bodies(10)
	report := frame(t, w, FrameInput{Delta: 0.01, Views: views, Bodies: all})
	if report.DispatchSize != 10 {
		t.Errorf("DispatchSize = %d, want 10", report.DispatchSize)
	}
	if got := w.Store().Descriptor().TextureSize; got != 64 {
		t.Fatalf("TextureSize = %d, want 64", got)
	}
	var ids []common.EntityID
	for _, b := range all {
		ids = append(ids, b.ID)
	}
	denseSlots(t, w.Allocator().Table(), ids)

	remaining := append(slices.Clone(all[:2]), all[5:]...)
	report = frame(t, w, FrameInput{Delta: 0.01, Views: views, Bodies: remaining})
	if report.DispatchSize != 7 {
		t.Errorf("DispatchSize after despawn = %d, want 7", report.DispatchSize)
	}
	ids = ids[:0]
	for _, b := range remaining {
		ids = append(ids, b.ID)
	}
	denseSlots(t, w.Allocator().Table(), ids)
	for _, id := range []common.EntityID{3, 4, 5} {
		if _, ok := w.Allocator().Table().Slot(id); ok {
			t.Errorf("Table().Slot(%d) found a slot for a despawned body", id)
		}
	}
}

func slotPosition(t *testing.T, r renderer.Renderer, buf resource.Buffer, slot uint32) mgl32.Vec3 {
	t.Helper()
	data, err := r.ReadBuffer(buf)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	return mgl32.Vec3(physics.UnmarshalGPUBody(data[physics.SlotOffset(slot):]).Position)
}

func TestPhysicsToggle(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		wantX   float32
	}{
		{"enabled", true, 0.5},
		{"disabled", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := graph.DefaultSettings()
			settings.Physics = tt.enabled
			w, r := newTestWorld(t, WithSettings(settings))

			in := FrameInput{Delta: 0.5, Views: []ViewInput{testView(1, false)}, Bodies: bodies(1)}
			report := frame(t, w, in)

			status, _ := report.Views[1].Status(graph.PassPhysics)
			wantStatus := graph.StatusDisabled
			if tt.enabled {
				wantStatus = graph.StatusRan
			}
			if status != wantStatus {
				t.Errorf("physics status = %v, want %v", status, wantStatus)
			}
			got := slotPosition(t, r, w.Allocator().Buffer(), 0)
			if math.Abs(float64(got.X()-tt.wantX)) > 1e-5 {
				t.Errorf("slot 0 x = %v, want %v", got.X(), tt.wantX)
			}
		})
	}
}

func worldState(t *testing.T, w World, r renderer.Renderer) ([]voxel.Voxel, []byte) {
	t.Helper()
	voxels, err := w.Store().ReadVoxels()
	if err != nil {
		t.Fatalf("ReadVoxels() error = %v", err)
	}
	buf, err := r.ReadBuffer(w.Allocator().Buffer())
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	return voxels, buf
}

func countMaterial(voxels []voxel.Voxel, material uint8) int {
	n := 0
	for _, v := range voxels {
		if v.Material() == material {
			n++
		}
	}
	return n
}

func TestDisabledPhysicsLeavesWorldUnchanged(t *testing.T) {
	const rock = 3
	// A 9³ block of collision voxels around the origin (voxel 16 is the world centre).
	lo, hi := common.Vec3i{X: 12, Y: 12, Z: 12}, common.Vec3i{X: 20, Y: 20, Z: 20}
	filled := 9 * 9 * 9
	eraser := physics.Body{ID: 1, HalfSize: mgl32.Vec3{0.5, 0.5, 0.5}, Effect: physics.CollisionErase}

	tests := []struct {
		name    string
		enabled bool
	}{
		{"disabled", false},
		{"enabled", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := graph.DefaultSettings()
			settings.Physics = tt.enabled
			w, r := newTestWorld(t, WithSettings(settings))
			w.Store().Fill(lo, hi, voxel.New(rock, voxel.FlagCollision))

			in := FrameInput{Delta: 0.1, Views: []ViewInput{testView(1, false)}, Bodies: []physics.Body{eraser}}
			frame(t, w, in)
			voxels1, buf1 := worldState(t, w, r)
			for range 3 {
				frame(t, w, in)
			}
			voxels4, buf4 := worldState(t, w, r)

			if !tt.enabled {
				if got := countMaterial(voxels1, rock); got != filled {
					t.Errorf("rock voxels after frame 1 = %d, want %d", got, filled)
				}
				if !slices.Equal(voxels1, voxels4) {
					t.Error("voxel world changed between frame 1 and frame 4 with physics disabled")
				}
				if !bytes.Equal(buf1, buf4) {
					t.Error("physics buffer changed between frame 1 and frame 4 with physics disabled")
				}
				return
			}
			if got := countMaterial(voxels4, rock); got >= filled {
				t.Errorf("rock voxels with physics enabled = %d, want fewer than %d", got, filled)
			}
		})
	}
}

func TestPhysicsNeedsAView(t *testing.T) {
	w, r := newTestWorld(t)
	report := frame(t, w, FrameInput{Delta: 0.5, Bodies: bodies(1)})

	if status, _ := report.Global.Status(graph.PassCameraDriver); status != graph.StatusSkipped {
		t.Errorf("camera driver status = %v, want skipped", status)
	}
	if got := slotPosition(t, r, w.Allocator().Buffer(), 0); got.X() != 0 {
		t.Errorf("slot 0 x = %v, want 0 without views", got.X())
	}
}

func TestReadbackArrivesOneFrameLate(t *testing.T) {
	w, _ := newTestWorld(t)
	in := FrameInput{Delta: 0.5, Views: []ViewInput{testView(1, false)}, Bodies: bodies(2)}

	frame(t, w, in)
	if got := w.PhysicsResults(); len(got) != 0 {
		t.Fatalf("PhysicsResults() after first frame = %d bodies, want 0", len(got))
	}

	frame(t, w, in)
	got := w.PhysicsResults()
	if len(got) != 2 {
		t.Fatalf("PhysicsResults() = %d bodies, want 2", len(got))
	}
	if x := got[2].Position.X(); math.Abs(float64(x-1)) > 1e-5 {
		t.Errorf("body 2 x = %v, want 1", x)
	}
}

func TestVoxelizeWritesMaterial(t *testing.T) {
	w, _ := newTestWorld(t)
	instance := voxelization.Instance{
		ID:        1,
		Mesh:      voxelization.Box(mgl32.Vec3{1, 1, 1}),
		Transform: mgl32.Ident4(),
		Material:  voxelization.IndexedMaterial(8, 0),
	}
	settings := graph.DefaultSettings()
	settings.Clear = false
	settings.Automata = false
	w.SetSettings(settings)

	report := frame(t, w, FrameInput{Delta: 0.01, Voxelize: []voxelization.Instance{instance}})
	if status, _ := report.Global.Status(graph.PassVoxelization); status != graph.StatusRan {
		t.Fatalf("voxelization status = %v, want ran", status)
	}

	voxels, err := w.Store().ReadVoxels()
	if err != nil {
		t.Fatalf("ReadVoxels() error = %v", err)
	}
	found := 0
	for _, v := range voxels {
		switch v.Material() {
		case 0:
		case 8:
			found++
		default:
			t.Fatalf("voxel material = %d, want 0 or 8", v.Material())
		}
	}
	if found == 0 {
		t.Errorf("no voxel with material 8 after voxelizing a box")
	}
}

func TestViewportResizeReallocatesOnce(t *testing.T) {
	w, _ := newTestWorld(t)
	view := testView(1, true)

	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{view}})
	v, ok := w.View(1)
	if !ok {
		t.Fatal("View(1) not found")
	}
	first := v.Attachments().Allocations()

	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{view}})
	if got := v.Attachments().Allocations(); got != first {
		t.Errorf("Allocations() with the same viewport = %d, want %d", got, first)
	}

	view.Viewport = common.Extent2D{Width: 8, Height: 6}
	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{view}})
	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{view}})
	if got := v.Attachments().Allocations(); got != first+1 {
		t.Errorf("Allocations() after resize = %d, want %d", got, first+1)
	}
	if got := v.Attachments().Size(); got != view.Viewport {
		t.Errorf("Size() = %v, want %v", got, view.Viewport)
	}
}

func TestTraceRunsOnlyWithAttachments(t *testing.T) {
	w, _ := newTestWorld(t)
	report := frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{testView(1, true), testView(2, false)}})

	tests := []struct {
		view common.ViewID
		want graph.Status
	}{
		{1, graph.StatusRan},
		{2, graph.StatusSkipped},
	}
	for _, tt := range tests {
		if got, _ := report.Views[tt.view].Status(graph.PassTrace); got != tt.want {
			t.Errorf("view %d trace status = %v, want %v", tt.view, got, tt.want)
		}
		if got, _ := report.Views[tt.view].Status(graph.PassAttachments); got != tt.want {
			t.Errorf("view %d attachments status = %v, want %v", tt.view, got, tt.want)
		}
	}
}

func TestOutputIsColorTargetAndPresented(t *testing.T) {
	w, r := newTestWorld(t)
	view := testView(1, true)
	view.Present = true
	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{view}})

	v, _ := w.View(1)
	if v.Output() == nil {
		t.Fatal("Output() = nil, want the colour target")
	}
	if v.Output() != v.Attachments().Color() {
		t.Errorf("Output() is not the view's colour attachment")
	}
	if got := r.Stats().Presents; got != 1 {
		t.Errorf("Presents = %d, want 1", got)
	}
	if got := r.Stats().Dispatches["trace"]; got != 1 {
		t.Errorf("trace dispatches = %d, want 1", got)
	}
}

func TestPassHookReplacesOutput(t *testing.T) {
	var called []common.ViewID
	hook := func(ctx graph.Context, v View) (graph.Slots, error) {
		called = append(called, v.ID())
		return graph.Slots{}, nil
	}
	w, _ := newTestWorld(t, WithPassHook(graph.PassUi, hook))
	report := frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{testView(1, true)}})

	if len(called) != 1 || called[0] != 1 {
		t.Errorf("hook calls = %v, want [1]", called)
	}
	if got, _ := report.Views[1].Status(graph.PassUpscaling); got != graph.StatusSkipped {
		t.Errorf("upscaling status = %v, want skipped without colour input", got)
	}
	v, _ := w.View(1)
	if v.Output() != nil {
		t.Errorf("Output() = %v, want nil", v.Output())
	}
}

func TestAbsentViewsAreReleased(t *testing.T) {
	w, _ := newTestWorld(t)
	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{testView(1, true), testView(2, true)}})
	if got := w.Views(); got != 2 {
		t.Fatalf("Views() = %d, want 2", got)
	}
	frame(t, w, FrameInput{Delta: 0.01, Views: []ViewInput{testView(2, true)}})
	if got := w.Views(); got != 1 {
		t.Errorf("Views() = %d, want 1", got)
	}
	if _, ok := w.View(1); ok {
		t.Errorf("View(1) still present after it left the input")
	}
}

func TestObserverReceivesReports(t *testing.T) {
	var reports []FrameReport
	w, _ := newTestWorld(t, WithObserver(func(r FrameReport) { reports = append(reports, r) }))
	frame(t, w, FrameInput{Delta: 0.01})
	frame(t, w, FrameInput{Delta: 0.01})

	if len(reports) != 2 {
		t.Fatalf("observer calls = %d, want 2", len(reports))
	}
	if reports[0].Frame != 1 || reports[1].Frame != 2 {
		t.Errorf("frames = %d, %d, want 1, 2", reports[0].Frame, reports[1].Frame)
	}
}

func TestFrameAfterClose(t *testing.T) {
	w, _ := newTestWorld(t)
	w.Close()
	if _, err := w.Frame(FrameInput{}); err != ErrClosed {
		t.Errorf("Frame() error = %v, want %v", err, ErrClosed)
	}
}
