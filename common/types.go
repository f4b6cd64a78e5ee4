// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Extent2D is a width/height pair in physical pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Clamp1 returns the extent with each dimension raised to at least 1 so it can back a GPU texture.
func (e Extent2D) Clamp1() Extent2D {
	return Extent2D{Width: max(e.Width, 1), Height: max(e.Height, 1)}
}

// Pixels returns Width * Height.
func (e Extent2D) Pixels() int {
	return int(e.Width) * int(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Vec3i is an integer lattice coordinate, used for voxel and brick positions.
type Vec3i struct {
	X, Y, Z int32
}

// Add returns the component-wise sum of v and o.
func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// InBounds reports whether every component lies in [0, size).
func (v Vec3i) InBounds(size int32) bool {
	return v.X >= 0 && v.Y >= 0 && v.Z >= 0 && v.X < size && v.Y < size && v.Z < size
}

// ViewID identifies one active view (a camera rendering into its own attachments).
type ViewID uint32

// EntityID identifies a host entity taking part in physics or voxelization.
type EntityID uint64
