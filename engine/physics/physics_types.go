package physics

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

// EntityID identifies a simulated entity.
type EntityID = common.EntityID

// CollisionEffect selects how a body interacts with solid voxels.
type CollisionEffect uint32

const (
	// CollisionNone integrates the body without testing the world.
	CollisionNone CollisionEffect = iota
	// CollisionCollide stops the body against collision voxels.
	CollisionCollide
	// CollisionErase clears every voxel the body overlaps.
	CollisionErase
)

func (c CollisionEffect) String() string {
	switch c {
	case CollisionNone:
		return "none"
	case CollisionCollide:
		return "collide"
	case CollisionErase:
		return "erase"
	default:
		return fmt.Sprintf("CollisionEffect(%d)", uint32(c))
	}
}

// Body is the host view of one physics-active entity. An entity takes part in simulation for a
// frame exactly when its Body is passed to Allocator.Prepare.
type Body struct {
	ID              EntityID
	Position        mgl32.Vec3
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3
	// HalfSize is the half extent of the axis-aligned box collider in metres.
	HalfSize mgl32.Vec3
	Effect   CollisionEffect
	// Hit is set on readback when the body touched a collision voxel during the frame.
	Hit bool
}
