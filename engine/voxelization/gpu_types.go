package voxelization

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// VoxelizationUniformsSource is the WGSL definition of VoxelizationUniforms (80 bytes) and
// VoxelizationCamera (64 bytes).
//
//go:embed assets/voxelization_uniforms.wgsl
var VoxelizationUniformsSource string

// MeshVertexSource is the WGSL vertex input of the voxelization pipeline.
//
//go:embed assets/mesh_vertex.wgsl
var MeshVertexSource string

//go:embed assets/voxelization.wgsl
var voxelizationSource string

func init() {
	shader.RegisterInclude(shader.AnnotationArgVoxelizationUniforms, VoxelizationUniformsSource, "VoxelizationUniforms")
	shader.RegisterInclude(shader.AnnotationArgMeshVertex, MeshVertexSource, "")
}

const (
	// UniformsSize is the byte size of the WGSL VoxelizationUniforms struct.
	UniformsSize = 80
	// CameraUniformsSize is the byte size of the WGSL VoxelizationCamera struct.
	CameraUniformsSize = 64
	// VertexStride is the byte size of one MeshVertex: position then uv.
	VertexStride = 20
)

// Bindings of the per-entity voxelization group.
const (
	BindingUniforms = 0
	BindingTexture  = 1
)

// Bind group indices of the voxelization pipeline.
const (
	GroupWorld  = 0
	GroupEntity = 1
	GroupCamera = 2
)

// Uniforms is the per-entity state read by the voxelization pipeline.
type Uniforms struct {
	Model    mgl32.Mat4 // offset 0: model → world
	Material uint32     // offset 64: 1-254, MaterialTexture for textured meshes, 0 writes nothing
	Flags    uint32     // offset 68: voxel.Flags written with the material
}

// Marshal serializes the uniforms for GPU upload.
//
// Returns:
//   - []byte: UniformsSize little-endian bytes
func (u Uniforms) Marshal() []byte {
	buf := make([]byte, UniformsSize)
	putMat4(buf, u.Model)
	binary.LittleEndian.PutUint32(buf[64:], u.Material)
	binary.LittleEndian.PutUint32(buf[68:], u.Flags)
	return buf
}

// UnmarshalUniforms decodes UniformsSize bytes.
func UnmarshalUniforms(data []byte) Uniforms {
	return Uniforms{
		Model:    getMat4(data),
		Material: binary.LittleEndian.Uint32(data[64:]),
		Flags:    binary.LittleEndian.Uint32(data[68:]),
	}
}

func putMat4(b []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
}

func getMat4(b []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return m
}

// EntityLayout returns the per-entity group layout: the uniforms and the material texture.
func EntityLayout(group int) shader.BindGroupLayout {
	visibility := shader.StageVertex | shader.StageFragment
	return shader.BindGroupLayout{Group: group, Entries: []shader.BindingLayout{
		{Binding: BindingUniforms, Name: "voxelization", Kind: shader.BindingKindUniform, Visibility: visibility, MinBindingSize: UniformsSize},
		{Binding: BindingTexture, Name: "material_texture", Kind: shader.BindingKindTexture, Visibility: visibility},
	}}
}

// CameraLayout returns the layout of one voxelization camera group.
func CameraLayout(group int) shader.BindGroupLayout {
	return shader.BindGroupLayout{Group: group, Entries: []shader.BindingLayout{
		{Binding: 0, Name: "camera", Kind: shader.BindingKindUniform, Visibility: shader.StageVertex | shader.StageFragment, MinBindingSize: CameraUniformsSize},
	}}
}
