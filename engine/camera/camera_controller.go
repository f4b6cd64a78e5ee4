package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController owns a camera's positional state. It offers orbit controls (spherical
// coordinates around a target) and planar controls (translating position and target together
// along the camera's local axes). Both work on the same instance.
type CameraController interface {
	// Position returns the camera's world-space position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3

	// SetTarget moves the pivot and recomputes the position from the spherical coordinates.
	//
	// Parameters:
	//   - target: world-space pivot
	SetTarget(target mgl32.Vec3)

	// Zoom moves toward the target. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Orbit rotates around the target by the given angles, scaled by the mouse sensitivity.
	// Elevation is clamped to the configured bounds.
	//
	// Parameters:
	//   - dAzimuth: horizontal angle delta in radians
	//   - dElevation: vertical angle delta in radians
	Orbit(dAzimuth, dElevation float32)

	// OrbitLeft rotates left by one orbit speed step.
	OrbitLeft()

	// OrbitRight rotates right by one orbit speed step.
	OrbitRight()

	// OrbitUp tilts up by one orbit speed step.
	OrbitUp()

	// OrbitDown tilts down by one orbit speed step.
	OrbitDown()

	// Radius returns the distance from the target.
	Radius() float32

	// SetRadius sets the distance from the target, clamped to the configured bounds.
	SetRadius(radius float32)

	// Azimuth returns the horizontal angle in radians.
	Azimuth() float32

	// Elevation returns the vertical angle in radians.
	Elevation() float32

	// PanRight translates along the camera's right axis.
	//
	// Parameters:
	//   - delta: distance scaled by the pan speed; negative moves left
	PanRight(delta float32)

	// PanUp translates along world up.
	PanUp(delta float32)

	// PanForward translates along the view direction projected onto the ground plane.
	PanForward(delta float32)
}
