package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestTransformIsInverseOfView(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{3, 4, 5}), WithTarget(mgl32.Vec3{0, 1, 0}))
	got := c.Transform().Mul4(c.ViewMatrix())
	if !got.ApproxEqualThreshold(mgl32.Ident4(), 1e-5) {
		t.Errorf("Transform() * ViewMatrix() = %v, want identity", got)
	}
	eye := c.Transform().Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	if !eye.ApproxEqualThreshold(mgl32.Vec3{3, 4, 5}, 1e-5) {
		t.Errorf("Transform() origin = %v, want the camera position", eye)
	}
}

func TestOrthographicDepthRange(t *testing.T) {
	p := OrthographicProjection(8, 8, -4, 4)
	m := p.Matrix()
	tests := []struct {
		name  string
		viewZ float32
		want  float32
	}{
		// view space looks down -Z, so the near plane at -4 sits at z = +4
		{"near", 4, 0},
		{"far", -4, 1},
		{"middle", 0, 0.5},
	}
	for _, tt := range tests {
		clip := m.Mul4x1(mgl32.Vec4{0, 0, tt.viewZ, 1})
		if got := clip.Z() / clip.W(); math.Abs(float64(got-tt.want)) > 1e-5 {
			t.Errorf("%s: depth = %v, want %v", tt.name, got, tt.want)
		}
	}
	corner := m.Mul4x1(mgl32.Vec4{4, 4, 0, 1})
	if !corner.Vec3().ApproxEqualThreshold(mgl32.Vec3{1, 1, 0.5}, 1e-5) {
		t.Errorf("corner = %v, want (1, 1, 0.5)", corner)
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	m := PerspectiveProjection(mgl32.DegToRad(60), 1, 0.5, 100).Matrix()
	near := m.Mul4x1(mgl32.Vec4{0, 0, -0.5, 1})
	far := m.Mul4x1(mgl32.Vec4{0, 0, -100, 1})
	if d := near.Z() / near.W(); math.Abs(float64(d)) > 1e-4 {
		t.Errorf("near depth = %v, want 0", d)
	}
	if d := far.Z() / far.W(); math.Abs(float64(d-1)) > 1e-4 {
		t.Errorf("far depth = %v, want 1", d)
	}
}

func TestSetAspect(t *testing.T) {
	c := NewCamera()
	c.SetAspect(2)
	if got := c.Projection().Aspect; got != 2 {
		t.Errorf("Aspect = %v, want 2", got)
	}
	c.SetProjection(OrthographicProjection(2, 2, -1, 1))
	c.SetAspect(3)
	if got := c.Projection(); got.Kind != ProjectionOrthographic || got.Aspect != 0 {
		t.Errorf("SetAspect changed an orthographic lens: %+v", got)
	}
}

func TestControllerDrivesCamera(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10), WithElevation(0), WithAzimuth(0))
	c := NewCamera(WithController(ctrl))
	if got := c.Position(); !got.ApproxEqualThreshold(mgl32.Vec3{0, 0, 10}, 1e-5) {
		t.Errorf("Position() = %v, want (0, 0, 10)", got)
	}

	ctrl.Zoom(4)
	ctrl.SetTarget(mgl32.Vec3{1, 0, 0})
	c.Update()
	if got := c.Position(); !got.ApproxEqualThreshold(mgl32.Vec3{1, 0, 6}, 1e-5) {
		t.Errorf("Position() after zoom = %v, want (1, 0, 6)", got)
	}
}

func TestControllerClamps(t *testing.T) {
	ctrl := NewCameraController(WithRadiusBounds(2, 20), WithElevationBounds(-0.5, 0.5))
	ctrl.SetRadius(100)
	if got := ctrl.Radius(); got != 20 {
		t.Errorf("Radius() = %v, want 20", got)
	}
	for range 100 {
		ctrl.OrbitUp()
	}
	if got := ctrl.Elevation(); got != 0.5 {
		t.Errorf("Elevation() = %v, want 0.5", got)
	}
}

func TestPanKeepsOrbit(t *testing.T) {
	ctrl := NewCameraController(WithRadius(5), WithElevation(0))
	before := ctrl.Position().Sub(ctrl.Target())
	ctrl.PanRight(3)
	ctrl.PanForward(2)
	ctrl.PanUp(1)
	after := ctrl.Position().Sub(ctrl.Target())
	if !after.ApproxEqualThreshold(before, 1e-5) {
		t.Errorf("offset after pan = %v, want %v", after, before)
	}
	if got := ctrl.Target().Y(); got != 1 {
		t.Errorf("Target().Y() = %v, want 1", got)
	}
}
