package voxelization

import (
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// MaterialKind selects how a voxelized mesh picks its voxel material.
type MaterialKind int

const (
	// MaterialIndexed writes a fixed material index.
	MaterialIndexed MaterialKind = iota
	// MaterialTextured writes voxel.MaterialTexture wherever the mesh texture is opaque.
	MaterialTextured
)

// MaxMaterialIndex is the highest index an indexed material can write.
const MaxMaterialIndex = voxel.MaterialTexture - 1

// Material is what a voxelized entity writes into the world.
type Material struct {
	Kind MaterialKind
	// Index is the material for MaterialIndexed. 0 writes nothing; 255 is reserved and clamps to
	// MaxMaterialIndex.
	Index uint8
	// Texture is sampled for MaterialTextured. Nil falls back to an opaque 1x1 texture.
	Texture resource.Texture
	// Flags are written with the material.
	Flags voxel.Flags
}

// DefaultMaterial returns material 10 flagged as animated, so the shape is cleared again at the
// start of the next frame.
func DefaultMaterial() Material {
	return Material{Kind: MaterialIndexed, Index: 10, Flags: voxel.FlagAnimation}
}

// IndexedMaterial returns a material writing a fixed index. 255 clamps to MaxMaterialIndex.
func IndexedMaterial(index uint8, flags voxel.Flags) Material {
	return Material{Kind: MaterialIndexed, Index: min(index, MaxMaterialIndex), Flags: flags}
}

// TexturedMaterial returns a material driven by a texture.
func TexturedMaterial(tex resource.Texture, flags voxel.Flags) Material {
	return Material{Kind: MaterialTextured, Texture: tex, Flags: flags}
}

// MaterialIndex returns the value the shader sees: Index clamped to MaxMaterialIndex, or
// voxel.MaterialTexture for textured materials.
func (m Material) MaterialIndex() uint32 {
	if m.Kind == MaterialTextured {
		return uint32(voxel.MaterialTexture)
	}
	return uint32(min(m.Index, MaxMaterialIndex))
}

// Uniforms encodes the material with a model transform.
func (m Material) Uniforms(model mgl32.Mat4) Uniforms {
	return Uniforms{Model: model, Material: m.MaterialIndex(), Flags: uint32(m.Flags)}
}
