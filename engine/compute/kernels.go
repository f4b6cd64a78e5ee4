package compute

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/physics"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// Host kernels mirror the WGSL in assets/ so the headless backend produces the same world.

var errUnbound = errors.New("compute: binding not bound")

const (
	gravity   float32 = -9.81
	maxExtent int32   = 64
)

// worldView is the world bind group as seen by a host kernel.
type worldView struct {
	size           uint32
	voxelsPerMeter float32
	bricksPerAxis  uint32
	voxels         []uint32
	bricks         []uint32
}

func bindWorld(b pipeline.HostBindings) (worldView, error) {
	u := b.Words(1, voxel.BindingUniforms)
	voxels := b.Words(1, voxel.BindingVoxels)
	bricks := b.Words(1, voxel.BindingBricks)
	if len(u) < 3 || voxels == nil || bricks == nil {
		return worldView{}, errUnbound
	}
	w := worldView{
		size:           u[0],
		voxelsPerMeter: math.Float32frombits(u[1]),
		bricksPerAxis:  u[2],
		voxels:         voxels,
		bricks:         bricks,
	}
	if uint64(len(voxels)) < uint64(w.size)*uint64(w.size)*uint64(w.size) {
		return worldView{}, errUnbound
	}
	return w, nil
}

func (w worldView) index(p common.Vec3i) int {
	s := int(w.size)
	return int(p.X) + int(p.Y)*s + int(p.Z)*s*s
}

func (w worldView) coord(i int) common.Vec3i {
	s := int(w.size)
	return common.Vec3i{X: int32(i % s), Y: int32(i / s % s), Z: int32(i / (s * s))}
}

func (w worldView) voxelCount() int {
	s := int(w.size)
	return s * s * s
}

func clearKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	d.Parallel(w.voxelCount(), func(i int) {
		v := voxel.Voxel(w.voxels[i])
		switch {
		case v.Has(voxel.FlagAnimation):
			w.voxels[i] = 0
		case v.Transient():
			w.voxels[i] = uint32(v &^ voxel.TransientBit)
		}
	})
	return nil
}

var automataMoves = [...]common.Vec3i{
	{X: 0, Y: -1, Z: 0},
	{X: 1, Y: -1, Z: 0},
	{X: -1, Y: -1, Z: 0},
	{X: 0, Y: -1, Z: 1},
	{X: 0, Y: -1, Z: -1},
}

// automataKernel runs in index order. Every move lands on a cell marked transient, so a grain
// moves at most once per frame whichever order the cells are visited in.
func automataKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	size := int32(w.size)
	for i := range w.voxelCount() {
		v := voxel.Voxel(w.voxels[i])
		if !v.Has(voxel.FlagSand) || v.Transient() || v.IsEmpty() {
			continue
		}
		p := w.coord(i)
		for _, m := range automataMoves {
			next := p.Add(m)
			if !next.InBounds(size) {
				continue
			}
			dst := w.index(next)
			if w.voxels[dst] != 0 {
				continue
			}
			w.voxels[dst] = uint32(v | voxel.TransientBit)
			w.voxels[i] = 0
			break
		}
	}
	return nil
}

func animationKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	entries := d.Bindings.Words(0, BindingAnimation)
	if len(entries) < AnimationHeaderWords {
		return errUnbound
	}
	count := min(int(entries[0]), (len(entries)-AnimationHeaderWords)/AnimationEntryWords)
	size := int32(w.size)
	for i := range count {
		e := entries[AnimationHeaderWords+i*AnimationEntryWords:]
		p := common.Vec3i{X: int32(e[0]), Y: int32(e[1]), Z: int32(e[2])}
		if !p.InBounds(size) {
			continue
		}
		index := w.index(p)
		if !voxel.Voxel(w.voxels[index]).IsEmpty() {
			continue
		}
		w.voxels[index] = uint32(voxel.Voxel(e[3]) | voxel.New(0, voxel.FlagAnimation))
	}
	return nil
}

func rebuildKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	b := int(w.bricksPerAxis)
	d.Parallel(b*b*b, func(i int) {
		bx, by, bz := uint32(i%b), uint32(i/b%b), uint32(i/(b*b))
		base := common.Vec3i{X: int32(bx * voxel.BrickSize), Y: int32(by * voxel.BrickSize), Z: int32(bz * voxel.BrickSize)}
		count := uint32(0)
		for z := range int32(voxel.BrickSize) {
			for y := range int32(voxel.BrickSize) {
				for x := range int32(voxel.BrickSize) {
					if !voxel.Voxel(w.voxels[w.index(base.Add(common.Vec3i{X: x, Y: y, Z: z}))]).IsEmpty() {
						count++
					}
				}
			}
		}
		if m := common.MortonEncode3(bx, by, bz); int(m) < len(w.bricks) {
			w.bricks[m] = count
		}
	})
	return nil
}

func (w worldView) toVoxel(p mgl32.Vec3) common.Vec3i {
	side := float32(w.size) / w.voxelsPerMeter / 2
	return common.Vec3i{
		X: common.FloorToInt((p[0] + side) * w.voxelsPerMeter),
		Y: common.FloorToInt((p[1] + side) * w.voxelsPerMeter),
		Z: common.FloorToInt((p[2] + side) * w.voxelsPerMeter),
	}
}

// boxBounds returns the clamped lattice box overlapped by an AABB, at most maxExtent cells per axis.
func (w worldView) boxBounds(center, halfSize mgl32.Vec3) (lo, hi common.Vec3i) {
	a, b := w.toVoxel(center.Sub(halfSize)), w.toVoxel(center.Add(halfSize))
	last := int32(w.size) - 1
	lo = common.Vec3i{X: max(a.X, 0), Y: max(a.Y, 0), Z: max(a.Z, 0)}
	hi = common.Vec3i{
		X: min(b.X, lo.X+maxExtent-1, last),
		Y: min(b.Y, lo.Y+maxExtent-1, last),
		Z: min(b.Z, lo.Z+maxExtent-1, last),
	}
	return lo, hi
}

func (w worldView) eachInBox(center, halfSize mgl32.Vec3, fn func(index int) bool) {
	lo, hi := w.boxBounds(center, halfSize)
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				if !fn(w.index(common.Vec3i{X: x, Y: y, Z: z})) {
					return
				}
			}
		}
	}
}

func (w worldView) boxCollides(center, halfSize mgl32.Vec3) bool {
	hit := false
	w.eachInBox(center, halfSize, func(i int) bool {
		hit = voxel.Voxel(w.voxels[i]).Has(voxel.FlagCollision)
		return !hit
	})
	return hit
}

func (w worldView) boxErase(center, halfSize mgl32.Vec3) bool {
	erased := false
	w.eachInBox(center, halfSize, func(i int) bool {
		if !voxel.Voxel(w.voxels[i]).IsEmpty() {
			w.voxels[i] = 0
			erased = true
		}
		return true
	})
	return erased
}

// physicsKernel runs slots in order; erasing bodies write the shared voxel buffer.
func physicsKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	uniforms := d.Bindings.Bytes(0, BindingUniforms)
	buf := d.Bindings.Bytes(0, BindingPhysics)
	if len(uniforms) < 8 || len(buf) < physics.HeaderWords*4 {
		return errUnbound
	}
	dt := math.Float32frombits(binary.LittleEndian.Uint32(uniforms[4:]))
	dispatch := binary.LittleEndian.Uint32(buf)
	capacity := physics.SlotCapacity(uint64(len(buf) / 4))

	for slot := range min(dispatch, capacity) {
		data := buf[physics.SlotOffset(slot):]
		body := physics.UnmarshalGPUBody(data)
		stepBody(w, &body, dt)
		copy(data[:physics.GPUBodySize], body.Marshal())
	}
	return nil
}

func stepBody(w worldView, body *physics.GPUBody, dt float32) {
	effect := physics.CollisionEffect(body.CollisionEffect)
	position := mgl32.Vec3(body.Position)
	velocity := mgl32.Vec3(body.Velocity)
	halfSize := mgl32.Vec3(body.HalfSize)
	body.Hit = 0

	if effect != physics.CollisionNone {
		velocity[1] += gravity * dt
	}
	for axis := range 3 {
		candidate := position
		candidate[axis] += velocity[axis] * dt
		if effect == physics.CollisionCollide && w.boxCollides(candidate, halfSize) {
			velocity[axis] = 0
			body.Hit = 1
			continue
		}
		position = candidate
	}
	if effect == physics.CollisionErase && w.boxErase(position, halfSize) {
		body.Hit = 1
	}
	body.Position = position
	body.Velocity = velocity
}
