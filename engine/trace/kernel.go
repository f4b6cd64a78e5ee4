package trace

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// traceKernel mirrors assets/trace.wgsl for the headless backend.

var errUnbound = errors.New("trace: binding not bound")

const (
	epsilon float32 = 0.0001
	shadow  float32 = 0.35
	ambient float32 = 0.2
	farAway float32 = 1.0e30
)

var sun = mgl32.Vec3{0.3713907, 0.7427814, 0.5570860}

type span struct {
	near, far         float32
	nearAxis, farAxis int
}

type hit struct {
	found  bool
	value  voxel.Voxel
	t      float32
	normal mgl32.Vec3
	steps  uint32
}

// worldView is the world bind group as seen by the trace kernel.
type worldView struct {
	size           uint32
	voxelsPerMeter float32
	voxels         []uint32
	bricks         []uint32
}

func bindWorld(b pipeline.HostBindings) (worldView, error) {
	u := b.Words(GroupWorld, voxel.BindingUniforms)
	w := worldView{voxels: b.Words(GroupWorld, voxel.BindingVoxels), bricks: b.Words(GroupWorld, voxel.BindingBricks)}
	if len(u) < 2 || w.voxels == nil || w.bricks == nil {
		return worldView{}, errUnbound
	}
	w.size, w.voxelsPerMeter = u[0], math.Float32frombits(u[1])
	if uint64(len(w.voxels)) < uint64(w.size)*uint64(w.size)*uint64(w.size) {
		return worldView{}, errUnbound
	}
	return w, nil
}

func axisNormal(axis int, dir mgl32.Vec3) mgl32.Vec3 {
	var n mgl32.Vec3
	switch {
	case dir[axis] > 0:
		n[axis] = -1
	case dir[axis] < 0:
		n[axis] = 1
	}
	return n
}

func slab(origin, dir, lo, hi mgl32.Vec3) span {
	s := span{near: -farAway, far: farAway}
	for a := range 3 {
		if dir[a] == 0 {
			if origin[a] < lo[a] || origin[a] > hi[a] {
				s.near, s.far = farAway, -farAway
			}
			continue
		}
		t0 := (lo[a] - origin[a]) / dir[a]
		t1 := (hi[a] - origin[a]) / dir[a]
		near, far := min(t0, t1), max(t0, t1)
		if near > s.near {
			s.near, s.nearAxis = near, a
		}
		if far < s.far {
			s.far, s.farAxis = far, a
		}
	}
	return s
}

func floorVec(p mgl32.Vec3) common.Vec3i {
	return common.Vec3i{X: common.FloorToInt(p[0]), Y: common.FloorToInt(p[1]), Z: common.FloorToInt(p[2])}
}

// march walks the ray through the lattice one cell at a time, jumping whole bricks whose
// occupancy count is zero. origin is in voxel units.
func (w worldView) march(origin, dir mgl32.Vec3) hit {
	var h hit
	size := float32(w.size)
	bounds := slab(origin, dir, mgl32.Vec3{}, mgl32.Vec3{size, size, size})
	if bounds.far < max(bounds.near, 0) {
		return h
	}
	t := max(bounds.near, 0)
	normal := axisNormal(bounds.nearAxis, dir)
	maxSteps := w.size * 3
	for h.steps < maxSteps {
		p := floorVec(origin.Add(dir.Mul(t + epsilon)))
		if !p.InBounds(int32(w.size)) {
			break
		}
		h.steps++
		x, y, z := uint32(p.X), uint32(p.Y), uint32(p.Z)
		if w.bricks[common.MortonEncode3(x/voxel.BrickSize, y/voxel.BrickSize, z/voxel.BrickSize)] == 0 {
			lo := mgl32.Vec3{float32(x / voxel.BrickSize * voxel.BrickSize), float32(y / voxel.BrickSize * voxel.BrickSize), float32(z / voxel.BrickSize * voxel.BrickSize)}
			leave := slab(origin, dir, lo, lo.Add(mgl32.Vec3{voxel.BrickSize, voxel.BrickSize, voxel.BrickSize}))
			t, normal = leave.far, axisNormal(leave.farAxis, dir)
			continue
		}
		v := voxel.Voxel(w.voxels[int(x)+int(y)*int(w.size)+int(z)*int(w.size)*int(w.size)])
		if v.Material() != 0 {
			h.found, h.value, h.t, h.normal = true, v, t, normal
			return h
		}
		lo := mgl32.Vec3{float32(x), float32(y), float32(z)}
		leave := slab(origin, dir, lo, lo.Add(mgl32.Vec3{1, 1, 1}))
		t, normal = leave.far, axisNormal(leave.farAxis, dir)
	}
	return h
}

// MaterialColor returns the albedo the trace pass shades a material with.
func MaterialColor(material uint8) mgl32.Vec3 {
	if material == voxel.MaterialTexture {
		return mgl32.Vec3{0.8, 0.8, 0.8}
	}
	h := uint32(material) * 2654435761
	channel := func(shift uint32) float32 { return float32((h>>shift)&255)/255*0.6 + 0.3 }
	return mgl32.Vec3{channel(16), channel(8), channel(0)}
}

func sky(dir mgl32.Vec3) mgl32.Vec3 {
	k := mgl32.Clamp(dir.Y()*0.5+0.5, 0, 1)
	horizon, zenith := mgl32.Vec3{0.9, 0.9, 1.0}, mgl32.Vec3{0.4, 0.6, 0.9}
	return horizon.Mul(1 - k).Add(zenith.Mul(k))
}

func unmarshalTraceUniforms(b []byte) uniform.TraceUniforms {
	mat := func(off int) mgl32.Mat4 {
		var m mgl32.Mat4
		for i := range m {
			m[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+i*4:]))
		}
		return m
	}
	return uniform.TraceUniforms{
		Camera:        mat(0),
		CameraInverse: mat(64),
		LastCamera:    mat(128),
		Projection:    mat(192),
		Time:          math.Float32frombits(binary.LittleEndian.Uint32(b[256:])),
		ShowRaySteps:  binary.LittleEndian.Uint32(b[260:]),
		Samples:       binary.LittleEndian.Uint32(b[264:]),
		Shadows:       binary.LittleEndian.Uint32(b[268:]),
	}
}

func unproject(inv mgl32.Mat4, ndcX, ndcY, depth float32) mgl32.Vec3 {
	p := inv.Mul4x1(mgl32.Vec4{ndcX, ndcY, depth, 1})
	return p.Vec3().Mul(1 / p.W())
}

func traceKernel(d pipeline.Dispatch) error {
	w, err := bindWorld(d.Bindings)
	if err != nil {
		return err
	}
	ub := d.Bindings.Bytes(GroupView, BindingUniforms)
	normalTarget := d.Bindings.Image(GroupView, BindingNormal)
	positionTarget := d.Bindings.Image(GroupView, BindingPosition)
	colorTarget := d.Bindings.Image(GroupView, BindingColor)
	if len(ub) < uniform.TraceUniformsSize || normalTarget == nil || positionTarget == nil || colorTarget == nil {
		return errUnbound
	}
	u := unmarshalTraceUniforms(ub)
	width, height := colorTarget.Width(), colorTarget.Height()
	side := float32(w.size) / w.voxelsPerMeter / 2
	samples := max(u.Samples, 1)

	d.Parallel(int(width*height), func(i int) {
		x, y := uint32(i)%width, uint32(i)/width
		var color mgl32.Vec3
		var first hit
		var firstPosition mgl32.Vec3
		for s := range samples {
			jx, jy := float32(0.5), float32(0.5)
			if samples > 1 {
				jx = fract(float32(s)*0.618034 + 0.5)
				jy = fract(float32(s)*0.381966 + 0.5)
			}
			ndcX := (float32(x)+jx)/float32(width)*2 - 1
			ndcY := 1 - (float32(y)+jy)/float32(height)*2
			near := unproject(u.CameraInverse, ndcX, ndcY, 0)
			far := unproject(u.CameraInverse, ndcX, ndcY, 1)
			dir := far.Sub(near).Normalize()
			origin := near.Add(mgl32.Vec3{side, side, side}).Mul(w.voxelsPerMeter)

			h := w.march(origin, dir)
			if s == 0 {
				first = h
				firstPosition = origin.Add(dir.Mul(h.t)).Mul(1 / w.voxelsPerMeter).Sub(mgl32.Vec3{side, side, side})
			}
			if !h.found {
				color = color.Add(sky(dir))
				continue
			}
			light := max(h.normal.Dot(sun), 0)
			if u.Shadows != 0 && light > 0 {
				p := origin.Add(dir.Mul(h.t)).Add(h.normal.Mul(0.01))
				if w.march(p, sun).found {
					light *= shadow
				}
			}
			color = color.Add(MaterialColor(h.value.Material()).Mul(ambient + (1-ambient)*light))
		}
		color = color.Mul(1 / float32(samples))
		if u.ShowRaySteps != 0 {
			g := float32(first.steps) / float32(w.size*3)
			color = mgl32.Vec3{g, g, g}
		}

		colorTarget.Store(x, y, [4]float32{color[0], color[1], color[2], 1})
		normalTarget.Store(x, y, [4]float32{first.normal[0], first.normal[1], first.normal[2], float32(first.steps)})
		if first.found {
			positionTarget.Store(x, y, [4]float32{firstPosition[0], firstPosition[1], firstPosition[2], 1})
		} else {
			positionTarget.Store(x, y, [4]float32{})
		}
	})
	return nil
}

func fract(v float32) float32 {
	return v - float32(math.Floor(float64(v)))
}
