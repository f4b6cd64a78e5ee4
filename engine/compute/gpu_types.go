package compute

import (
	_ "embed"
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
)

// AnimationBufferSource is the WGSL definition of the animation instruction buffer.
//
//go:embed assets/animation_buffer.wgsl
var AnimationBufferSource string

var (
	//go:embed assets/clear.wgsl
	clearSource string
	//go:embed assets/automata.wgsl
	automataSource string
	//go:embed assets/animation.wgsl
	animationSource string
	//go:embed assets/rebuild.wgsl
	rebuildSource string
	//go:embed assets/physics.wgsl
	physicsSource string
)

func init() {
	shader.RegisterInclude(shader.AnnotationArgAnimationBuffer, AnimationBufferSource, "AnimationBuffer")
}

// Bindings of the compute bind group.
const (
	BindingUniforms  = 0
	BindingPhysics   = 1
	BindingAnimation = 2
)

const (
	// DefaultAnimationLength is the default animation buffer length in u32 elements.
	DefaultAnimationLength = 1_000_000

	// AnimationHeaderWords is the size of the animation buffer header. Word 0 holds the count.
	AnimationHeaderWords = 4
	// AnimationEntryWords is the stride of one instruction.
	AnimationEntryWords = 4
)

// AnimationCapacity returns how many instructions fit in a buffer of length u32 elements.
func AnimationCapacity(length uint64) uint32 {
	if length <= AnimationHeaderWords {
		return 0
	}
	return uint32((length - AnimationHeaderWords) / AnimationEntryWords)
}

// AnimationInstruction places one voxel for a single frame. The animation pass writes it only into
// an empty cell and tags it as animated, so the clear pass removes it at the start of the next frame.
type AnimationInstruction struct {
	// Position is the lattice coordinate of the cell.
	Position [3]uint32
	// Voxel is the value to write. The animation flag is added by the pass.
	Voxel voxel.Voxel
}

// Marshal serializes the instruction for GPU upload.
//
// Returns:
//   - []byte: 16 little-endian bytes (x, y, z, voxel)
func (a AnimationInstruction) Marshal() []byte {
	buf := make([]byte, AnimationEntryWords*4)
	binary.LittleEndian.PutUint32(buf[0:], a.Position[0])
	binary.LittleEndian.PutUint32(buf[4:], a.Position[1])
	binary.LittleEndian.PutUint32(buf[8:], a.Position[2])
	binary.LittleEndian.PutUint32(buf[12:], uint32(a.Voxel))
	return buf
}

// Layout returns the compute bind group layout: the compute uniforms, the physics buffer and the
// read-only animation buffer.
//
// Parameters:
//   - group: the @group index
//
// Returns:
//   - shader.BindGroupLayout: the layout every compute pass declares
func Layout(group int) shader.BindGroupLayout {
	return shader.BindGroupLayout{Group: group, Entries: []shader.BindingLayout{
		{Binding: BindingUniforms, Name: "uniforms", Kind: shader.BindingKindUniform, Visibility: shader.StageCompute, MinBindingSize: uniform.ComputeUniformsSize},
		{Binding: BindingPhysics, Name: "physics", Kind: shader.BindingKindStorage, Visibility: shader.StageCompute, MinBindingSize: 16, RuntimeSized: true},
		{Binding: BindingAnimation, Name: "animation", Kind: shader.BindingKindReadOnlyStorage, Visibility: shader.StageCompute, MinBindingSize: 16, RuntimeSized: true},
	}}
}
