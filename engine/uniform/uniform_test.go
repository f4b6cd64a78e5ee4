package uniform

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

func testTransform(x float32) mgl32.Mat4 {
	return mgl32.LookAtV(mgl32.Vec3{x, 2, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}).Inv()
}

var testProjection = mgl32.Perspective(mgl32.DegToRad(60), 1.5, 0.1, 100)

func TestFirstFrameLastCameraEqualsCamera(t *testing.T) {
	s := NewStream()
	s.BeginFrame(0, 0)
	u := s.View(1, testTransform(0), testProjection, DefaultTraceSettings())
	if u.LastCamera != u.Camera {
		t.Errorf("LastCamera = %v, want Camera %v", u.LastCamera, u.Camera)
	}
}

func TestLastCameraIsPreviousFrame(t *testing.T) {
	s := NewStream()
	var previous mgl32.Mat4
	for frame := range 4 {
		s.BeginFrame(float32(frame), 1)
		u := s.View(7, testTransform(float32(frame)), testProjection, DefaultTraceSettings())
		if frame > 0 && u.LastCamera != previous {
			t.Errorf("frame %d: LastCamera = %v, want %v", frame, u.LastCamera, previous)
		}
		previous = u.Camera
		s.EndFrame()
	}
}

func TestMatrixIdentities(t *testing.T) {
	s := NewStream()
	s.BeginFrame(3, 0.5)
	u := s.View(1, testTransform(1), testProjection, DefaultTraceSettings())
	if got := u.Camera.Mul4(u.CameraInverse); !got.ApproxEqualThreshold(mgl32.Ident4(), 1e-4) {
		t.Errorf("Camera * CameraInverse = %v, want identity", got)
	}
	if u.Projection != testProjection {
		t.Errorf("Projection = %v, want %v", u.Projection, testProjection)
	}
	if u.Time != 3 {
		t.Errorf("Time = %v, want 3", u.Time)
	}
}

func TestEndFramePrunesStaleViews(t *testing.T) {
	s := NewStream()
	s.BeginFrame(0, 0)
	for id := range 3 {
		s.View(common.ViewID(id), testTransform(0), testProjection, DefaultTraceSettings())
	}
	if pruned := s.EndFrame(); pruned != 0 {
		t.Errorf("EndFrame() = %d, want 0", pruned)
	}

	s.BeginFrame(1, 1)
	s.View(common.ViewID(2), testTransform(1), testProjection, DefaultTraceSettings())
	if pruned := s.EndFrame(); pruned != 2 {
		t.Errorf("EndFrame() = %d, want 2", pruned)
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	// a pruned view starts over without history
	s.BeginFrame(2, 1)
	u := s.View(common.ViewID(0), testTransform(5), testProjection, DefaultTraceSettings())
	if u.LastCamera != u.Camera {
		t.Error("re-added view should have LastCamera == Camera")
	}
}

func TestTraceSettingsEncoding(t *testing.T) {
	s := NewStream()
	s.BeginFrame(0, 0)
	u := s.View(1, testTransform(0), testProjection, TraceSettings{ShowRaySteps: true, Samples: 0, Shadows: false})
	if u.ShowRaySteps != 1 || u.Samples != 1 || u.Shadows != 0 {
		t.Errorf("settings = (%d, %d, %d), want (1, 1, 0)", u.ShowRaySteps, u.Samples, u.Shadows)
	}
	if d := DefaultTraceSettings(); d.ShowRaySteps || d.Samples != 1 || !d.Shadows {
		t.Errorf("DefaultTraceSettings() = %+v", d)
	}
}

func TestMarshalLayout(t *testing.T) {
	c := ComputeUniforms{Time: 1.5, DeltaTime: 0.25}.Marshal()
	if len(c) != ComputeUniformsSize {
		t.Fatalf("len(ComputeUniforms.Marshal()) = %d, want %d", len(c), ComputeUniformsSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(c[4:])); got != 0.25 {
		t.Errorf("delta_time = %v, want 0.25", got)
	}

	u := TraceUniforms{Projection: mgl32.Ident4(), Time: 2, Samples: 4, Shadows: 1}
	b := u.Marshal()
	if len(b) != TraceUniformsSize {
		t.Fatalf("len(TraceUniforms.Marshal()) = %d, want %d", len(b), TraceUniformsSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[192:])); got != 1 {
		t.Errorf("projection[0] = %v, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(b[264:]); got != 4 {
		t.Errorf("samples = %d, want 4", got)
	}
}
