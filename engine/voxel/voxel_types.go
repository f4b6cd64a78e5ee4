package voxel

// Voxel is one packed world cell: material in bits 0-7, flags in bits 8-15 and the transient bit
// at 16. Material 0 is empty.
type Voxel uint32

// Flags are the per-voxel behaviour bits.
type Flags uint8

const (
	FlagNone      Flags = 0
	FlagAnimation Flags = 1 << 0 // cleared by the clear pass every frame
	FlagCollision Flags = 1 << 1
	FlagSand      Flags = 1 << 2 // moved by the automata pass
)

const (
	// MaterialEmpty marks an empty cell.
	MaterialEmpty uint8 = 0
	// MaterialTexture is the reserved material meaning "sample the voxelized mesh's texture".
	MaterialTexture uint8 = 255

	// TransientBit marks a voxel written this frame by a pass that must not process it again.
	TransientBit Voxel = 1 << 16

	flagsShift = 8
)

// New packs a material and flags into a voxel.
//
// Parameters:
//   - material: the material index, 0 for empty
//   - flags: the behaviour bits
//
// Returns:
//   - Voxel: the packed voxel
func New(material uint8, flags Flags) Voxel {
	return Voxel(material) | Voxel(flags)<<flagsShift
}

// Material returns the material index.
func (v Voxel) Material() uint8 {
	return uint8(v)
}

// Flags returns the behaviour bits.
func (v Voxel) Flags() Flags {
	return Flags(v >> flagsShift)
}

// Has reports whether every bit of f is set.
func (v Voxel) Has(f Flags) bool {
	return v.Flags()&f == f
}

// Transient reports whether the transient bit is set.
func (v Voxel) Transient() bool {
	return v&TransientBit != 0
}

// IsEmpty reports whether the voxel holds no material.
func (v Voxel) IsEmpty() bool {
	return v.Material() == MaterialEmpty
}
