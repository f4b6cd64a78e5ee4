package uniform

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// ComputeUniformsSource is the WGSL definition of ComputeUniforms (8 bytes).
//
//go:embed assets/compute_uniforms.wgsl
var ComputeUniformsSource string

// TraceUniformsSource is the WGSL definition of TraceUniforms (272 bytes).
//
//go:embed assets/trace_uniforms.wgsl
var TraceUniformsSource string

func init() {
	shader.RegisterInclude(shader.AnnotationArgComputeUniforms, ComputeUniformsSource, "ComputeUniforms")
	shader.RegisterInclude(shader.AnnotationArgTraceUniforms, TraceUniformsSource, "TraceUniforms")
}

const (
	// ComputeUniformsSize is the byte size of the WGSL ComputeUniforms struct.
	ComputeUniformsSize = 8
	// TraceUniformsSize is the byte size of the WGSL TraceUniforms struct.
	TraceUniformsSize = 4*64 + 16
)

// ComputeUniforms is the global scalar state shared by every compute pass.
type ComputeUniforms struct {
	Time      float32 // offset 0: seconds since start
	DeltaTime float32 // offset 4: seconds since the previous frame
}

// Marshal serializes the uniforms for GPU upload.
//
// Returns:
//   - []byte: ComputeUniformsSize little-endian bytes
func (u ComputeUniforms) Marshal() []byte {
	buf := make([]byte, ComputeUniformsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(u.Time))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(u.DeltaTime))
	return buf
}

// TraceUniforms is the per-view state read by the trace pass. Matrices are column-major, matching
// both mgl32 and WGSL.
type TraceUniforms struct {
	Camera        mgl32.Mat4 // offset   0: world → clip
	CameraInverse mgl32.Mat4 // offset  64: clip → world
	LastCamera    mgl32.Mat4 // offset 128: previous frame's Camera
	Projection    mgl32.Mat4 // offset 192: view → clip
	Time          float32    // offset 256
	ShowRaySteps  uint32     // offset 260: 0 or 1
	Samples       uint32     // offset 264
	Shadows       uint32     // offset 268: 0 or 1
}

// Marshal serializes the uniforms for GPU upload.
//
// Returns:
//   - []byte: TraceUniformsSize little-endian bytes
func (u TraceUniforms) Marshal() []byte {
	buf := make([]byte, TraceUniformsSize)
	for i, m := range []mgl32.Mat4{u.Camera, u.CameraInverse, u.LastCamera, u.Projection} {
		for j := range 16 {
			binary.LittleEndian.PutUint32(buf[i*64+j*4:], math.Float32bits(m[j]))
		}
	}
	binary.LittleEndian.PutUint32(buf[256:], math.Float32bits(u.Time))
	binary.LittleEndian.PutUint32(buf[260:], u.ShowRaySteps)
	binary.LittleEndian.PutUint32(buf[264:], u.Samples)
	binary.LittleEndian.PutUint32(buf[268:], u.Shadows)
	return buf
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
