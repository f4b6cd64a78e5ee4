package compute

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
)

// resourcesImpl is the implementation of the Resources interface.
type resourcesImpl struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	provider bind_group_provider.BindGroupProvider
	label    string

	animationLength uint64
	animationCount  uint32
}

// Resources owns the compute bind group shared by every compute pass: the compute uniforms, the
// physics buffer (borrowed from the physics allocator) and the animation buffer.
type Resources interface {
	// Provider returns the compute bind group.
	Provider() bind_group_provider.BindGroupProvider

	// WriteUniforms uploads this frame's global scalars.
	WriteUniforms(u uniform.ComputeUniforms) error

	// SetAnimation stages this frame's animation instructions. Instructions beyond the buffer
	// capacity are dropped and logged.
	//
	// Parameters:
	//   - instructions: the voxels to place this frame
	//
	// Returns:
	//   - uint32: the number of instructions staged, the animation dispatch size
	//   - error: if the buffer write fails
	SetAnimation(instructions []AnimationInstruction) (uint32, error)

	// AnimationCount returns the number of instructions staged by the last SetAnimation.
	AnimationCount() uint32

	// SetPhysicsBuffer swaps the borrowed physics buffer after the allocator resized it and
	// rebuilds the bind group.
	SetPhysicsBuffer(buf resource.Buffer) error

	// Release frees the owned buffers.
	Release()
}

var _ Resources = &resourcesImpl{}

// NewResources creates the compute bind group. It panics if the group cannot be created.
//
// Parameters:
//   - r: the renderer
//   - physicsBuffer: the allocator's GPU physics buffer
//   - options: functional options to configure the resources
//
// Returns:
//   - Resources: the compute resources
func NewResources(r renderer.Renderer, physicsBuffer resource.Buffer, options ...ResourcesBuilderOption) Resources {
	res := &resourcesImpl{
		mu:              &sync.Mutex{},
		renderer:        r,
		label:           "compute",
		animationLength: DefaultAnimationLength,
	}
	for _, opt := range options {
		opt(res)
	}
	res.provider = bind_group_provider.NewBindGroupProvider(res.label,
		bind_group_provider.WithSharedBuffer(BindingPhysics, physicsBuffer),
	)
	sizes := map[int]uint64{BindingAnimation: res.animationLength * 4}
	if err := r.InitBindGroup(res.provider, Layout(0), nil, sizes); err != nil {
		panic(fmt.Sprintf("compute: init bind group: %v", err))
	}
	return res
}

func (res *resourcesImpl) Provider() bind_group_provider.BindGroupProvider {
	return res.provider
}

func (res *resourcesImpl) WriteUniforms(u uniform.ComputeUniforms) error {
	return res.renderer.WriteBuffers([]renderer.BufferWrite{{
		Provider: res.provider,
		Binding:  BindingUniforms,
		Data:     u.Marshal(),
	}})
}

func (res *resourcesImpl) SetAnimation(instructions []AnimationInstruction) (uint32, error) {
	res.mu.Lock()
	defer res.mu.Unlock()

	capacity := AnimationCapacity(res.animationLength)
	count := uint32(min(len(instructions), int(capacity)))
	if dropped := len(instructions) - int(count); dropped > 0 {
		common.Logger().Warn("animation buffer full", "capacity", capacity, "dropped", dropped)
	}

	data := make([]byte, (AnimationHeaderWords+int(count)*AnimationEntryWords)*4)
	binary.LittleEndian.PutUint32(data, count)
	for i, a := range instructions[:count] {
		copy(data[(AnimationHeaderWords+i*AnimationEntryWords)*4:], a.Marshal())
	}
	if err := res.renderer.WriteBuffers([]renderer.BufferWrite{{Provider: res.provider, Binding: BindingAnimation, Data: data}}); err != nil {
		return 0, fmt.Errorf("compute: stage animation: %w", err)
	}
	res.animationCount = count
	return count, nil
}

func (res *resourcesImpl) AnimationCount() uint32 {
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.animationCount
}

func (res *resourcesImpl) SetPhysicsBuffer(buf resource.Buffer) error {
	res.provider.ShareBuffer(BindingPhysics, buf)
	if err := res.renderer.RebindGroup(res.provider); err != nil {
		return fmt.Errorf("compute: rebind physics buffer: %w", err)
	}
	return nil
}

func (res *resourcesImpl) Release() {
	res.provider.Release()
}
