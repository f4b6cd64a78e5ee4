package voxel

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
)

// WorldUniformsSource is the WGSL definition of WorldUniforms (16 bytes).
//
//go:embed assets/world_uniforms.wgsl
var WorldUniformsSource string

// VoxelCommonSource holds the WGSL voxel packing constants and index helpers. It mirrors Voxel,
// Descriptor.Index and Descriptor.BrickIndex.
//
//go:embed assets/voxel_common.wgsl
var VoxelCommonSource string

func init() {
	shader.RegisterInclude(shader.AnnotationArgWorldUniforms, WorldUniformsSource, "WorldUniforms")
	shader.RegisterInclude(shader.AnnotationArgVoxelCommon, VoxelCommonSource, "")
}

// Bindings of the world bind group.
const (
	BindingUniforms = 0
	BindingVoxels   = 1
	BindingBricks   = 2
)

// WorldUniformsSize is the byte size of the WGSL WorldUniforms struct.
const WorldUniformsSize = 16

// WorldUniforms describes the world to every pass.
type WorldUniforms struct {
	TextureSize    uint32  // offset 0
	VoxelsPerMeter float32 // offset 4
	BricksPerAxis  uint32  // offset 8
}

// UniformsFor returns the uniforms of a descriptor.
func UniformsFor(d Descriptor) WorldUniforms {
	return WorldUniforms{TextureSize: d.TextureSize, VoxelsPerMeter: d.VoxelsPerMeter, BricksPerAxis: d.BricksPerAxis()}
}

// Marshal serializes the uniforms for GPU upload.
//
// Returns:
//   - []byte: WorldUniformsSize little-endian bytes, the last word zero padding
func (u WorldUniforms) Marshal() []byte {
	buf := make([]byte, WorldUniformsSize)
	binary.LittleEndian.PutUint32(buf[0:], u.TextureSize)
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(u.VoxelsPerMeter))
	binary.LittleEndian.PutUint32(buf[8:], u.BricksPerAxis)
	return buf
}

// Layout returns the world bind group layout at the given group index. Every pass that binds the
// world declares the same three bindings.
//
// Parameters:
//   - group: the @group index the consumer binds the world at
//
// Returns:
//   - shader.BindGroupLayout: uniforms, voxels and bricks
func Layout(group int) shader.BindGroupLayout {
	visibility := shader.StageCompute | shader.StageFragment
	return shader.BindGroupLayout{Group: group, Entries: []shader.BindingLayout{
		{Binding: BindingUniforms, Name: "world", Kind: shader.BindingKindUniform, Visibility: visibility, MinBindingSize: WorldUniformsSize},
		{Binding: BindingVoxels, Name: "voxels", Kind: shader.BindingKindStorage, Visibility: visibility, MinBindingSize: 4, RuntimeSized: true},
		{Binding: BindingBricks, Name: "bricks", Kind: shader.BindingKindStorage, Visibility: visibility, MinBindingSize: 4, RuntimeSized: true},
	}}
}
