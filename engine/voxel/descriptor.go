package voxel

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/go-gl/mathgl/mgl32"
)

// BrickSize is the edge length of a brick in voxels.
const BrickSize = 4

// MaxTextureSize bounds the texture size so brick coordinates fit a 30-bit Morton code.
const MaxTextureSize = 1024

var ErrInvalidDescriptor = errors.New("voxel: invalid descriptor")

// Descriptor describes the dimensions and backing capacity of the voxel world.
type Descriptor struct {
	// TextureSize is the world edge length in voxels.
	TextureSize uint32 `json:"texture_size"`
	// VoxelsPerMeter is the world scale.
	VoxelsPerMeter float32 `json:"voxels_per_meter"`
	// Capacity is the size of the backing storage in u32 elements: one word per voxel plus one
	// occupancy word per brick.
	Capacity uint64 `json:"capacity"`
}

// NewDescriptor returns a validated descriptor with the capacity derived from the size.
//
// Parameters:
//   - size: the texture size, a power of two in [BrickSize, MaxTextureSize]
//   - voxelsPerMeter: the world scale, greater than zero
//
// Returns:
//   - Descriptor: the descriptor
//   - error: ErrInvalidDescriptor if a parameter is out of range
func NewDescriptor(size uint32, voxelsPerMeter float32) (Descriptor, error) {
	d := Descriptor{TextureSize: size, VoxelsPerMeter: voxelsPerMeter}
	d.Capacity = d.VoxelCount() + d.BrickCount()
	return d, d.Validate()
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	switch {
	case d.TextureSize < BrickSize || d.TextureSize > MaxTextureSize:
		return fmt.Errorf("%w: texture size %d outside [%d, %d]", ErrInvalidDescriptor, d.TextureSize, BrickSize, MaxTextureSize)
	case bits.OnesCount32(d.TextureSize) != 1:
		return fmt.Errorf("%w: texture size %d is not a power of two", ErrInvalidDescriptor, d.TextureSize)
	case d.VoxelsPerMeter <= 0:
		return fmt.Errorf("%w: voxels per meter %v", ErrInvalidDescriptor, d.VoxelsPerMeter)
	case d.Capacity < d.VoxelCount()+d.BrickCount():
		return fmt.Errorf("%w: capacity %d below %d", ErrInvalidDescriptor, d.Capacity, d.VoxelCount()+d.BrickCount())
	}
	return nil
}

// VoxelCount returns TextureSize³.
func (d Descriptor) VoxelCount() uint64 {
	s := uint64(d.TextureSize)
	return s * s * s
}

// BricksPerAxis returns TextureSize / BrickSize.
func (d Descriptor) BricksPerAxis() uint32 {
	return d.TextureSize / BrickSize
}

// BrickCount returns the number of bricks in the world.
func (d Descriptor) BrickCount() uint64 {
	b := uint64(d.BricksPerAxis())
	return b * b * b
}

// Side returns half the world's edge length in metres. The world spans [-Side, Side] on each axis.
func (d Descriptor) Side() float32 {
	return float32(d.TextureSize) / d.VoxelsPerMeter / 2
}

// Index returns the linear voxel index of a lattice coordinate.
func (d Descriptor) Index(x, y, z uint32) uint64 {
	s := uint64(d.TextureSize)
	return uint64(x) + uint64(y)*s + uint64(z)*s*s
}

// Coord is the inverse of Index.
func (d Descriptor) Coord(index uint64) common.Vec3i {
	s := uint64(d.TextureSize)
	return common.Vec3i{X: int32(index % s), Y: int32(index / s % s), Z: int32(index / (s * s))}
}

// BrickIndex returns the Morton-ordered brick holding a voxel.
func (d Descriptor) BrickIndex(x, y, z uint32) uint32 {
	return common.MortonEncode3(x/BrickSize, y/BrickSize, z/BrickSize)
}

// Contains reports whether a lattice coordinate lies inside the world.
func (d Descriptor) Contains(p common.Vec3i) bool {
	return p.InBounds(int32(d.TextureSize))
}

// WorldToVoxel returns the lattice cell containing a world-space point. The result may lie
// outside the world; check it with Contains.
func (d Descriptor) WorldToVoxel(p mgl32.Vec3) common.Vec3i {
	side := d.Side()
	return common.Vec3i{
		X: common.FloorToInt((p.X() + side) * d.VoxelsPerMeter),
		Y: common.FloorToInt((p.Y() + side) * d.VoxelsPerMeter),
		Z: common.FloorToInt((p.Z() + side) * d.VoxelsPerMeter),
	}
}

// VoxelToWorld returns the world-space centre of a lattice cell.
func (d Descriptor) VoxelToWorld(v common.Vec3i) mgl32.Vec3 {
	side := d.Side()
	return mgl32.Vec3{
		(float32(v.X)+0.5)/d.VoxelsPerMeter - side,
		(float32(v.Y)+0.5)/d.VoxelsPerMeter - side,
		(float32(v.Z)+0.5)/d.VoxelsPerMeter - side,
	}
}
