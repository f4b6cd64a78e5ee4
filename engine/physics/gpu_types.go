package physics

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

// PhysicsBodySource is the WGSL definition of PhysicsBody (64 bytes) and the PhysicsBuffer that
// prefixes the body array with a 16-byte header.
//
//go:embed assets/physics_body.wgsl
var PhysicsBodySource string

func init() {
	shader.RegisterInclude(shader.AnnotationArgPhysicsBody, PhysicsBodySource, "PhysicsBuffer")
}

const (
	// DefaultBufferLength is the default physics buffer length in u32 elements.
	DefaultBufferLength = 1_000_000

	// HeaderWords is the size of the buffer header. Word 0 holds the dispatch size.
	HeaderWords = 4
	// SlotWords is the stride of one slot.
	SlotWords = 16
	// GPUBodySize is the byte size of one slot.
	GPUBodySize = SlotWords * 4
)

// SlotCapacity returns how many slots fit in a buffer of bufferLength u32 elements.
func SlotCapacity(bufferLength uint64) uint32 {
	if bufferLength <= HeaderWords {
		return 0
	}
	return uint32(min((bufferLength-HeaderWords)/SlotWords, math.MaxUint32))
}

// SlotOffset returns the byte offset of a slot within the physics buffer.
func SlotOffset(slot uint32) uint64 {
	return (HeaderWords + uint64(slot)*SlotWords) * 4
}

// GPUBody mirrors the WGSL PhysicsBody struct.
type GPUBody struct {
	Position        [3]float32 // offset 0
	CollisionEffect uint32     // offset 12
	Velocity        [3]float32 // offset 16
	Hit             uint32     // offset 28
	AngularVelocity [3]float32 // offset 32
	_               uint32
	HalfSize        [3]float32 // offset 48
	_               uint32
}

// NewGPUBody converts a host body to its slot layout.
func NewGPUBody(b Body) GPUBody {
	return GPUBody{
		Position:        b.Position,
		CollisionEffect: uint32(b.Effect),
		Velocity:        b.Velocity,
		AngularVelocity: b.AngularVelocity,
		HalfSize:        b.HalfSize,
	}
}

// Marshal serializes the body for GPU upload.
//
// Returns:
//   - []byte: GPUBodySize little-endian bytes
func (g GPUBody) Marshal() []byte {
	buf := make([]byte, GPUBodySize)
	putVec3(buf[0:], g.Position)
	binary.LittleEndian.PutUint32(buf[12:], g.CollisionEffect)
	putVec3(buf[16:], g.Velocity)
	binary.LittleEndian.PutUint32(buf[28:], g.Hit)
	putVec3(buf[32:], g.AngularVelocity)
	putVec3(buf[48:], g.HalfSize)
	return buf
}

// UnmarshalGPUBody decodes one slot. data must hold at least GPUBodySize bytes.
func UnmarshalGPUBody(data []byte) GPUBody {
	return GPUBody{
		Position:        getVec3(data[0:]),
		CollisionEffect: binary.LittleEndian.Uint32(data[12:]),
		Velocity:        getVec3(data[16:]),
		Hit:             binary.LittleEndian.Uint32(data[28:]),
		AngularVelocity: getVec3(data[32:]),
		HalfSize:        getVec3(data[48:]),
	}
}

// Body returns the host body for id.
func (g GPUBody) Body(id EntityID) Body {
	return Body{
		ID:              id,
		Position:        mgl32.Vec3(g.Position),
		Velocity:        mgl32.Vec3(g.Velocity),
		AngularVelocity: mgl32.Vec3(g.AngularVelocity),
		HalfSize:        mgl32.Vec3(g.HalfSize),
		Effect:          CollisionEffect(g.CollisionEffect),
		Hit:             g.Hit != 0,
	}
}

func putVec3(b []byte, v [3]float32) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v[i]))
	}
}

func getVec3(b []byte) [3]float32 {
	var v [3]float32
	for i := range 3 {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// header encodes the 16-byte buffer header.
func header(dispatchSize uint32) []byte {
	buf := make([]byte, HeaderWords*4)
	binary.LittleEndian.PutUint32(buf, dispatchSize)
	return buf
}
