package voxelization

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/go-gl/mathgl/mgl32"
)

// rasterKernel mirrors assets/voxelization.wgsl for the headless backend: vertices are transformed
// through the entity and camera uniforms, triangles are scan-converted at pixel centres, and each
// covered fragment marks the voxel under its interpolated world position.

var errUnbound = errors.New("voxelization: binding not bound")

type rasterVertex struct {
	clip  mgl32.Vec4
	world mgl32.Vec3
	uv    mgl32.Vec2
}

type fragmentState struct {
	size           int32
	voxelsPerMeter float32
	voxels         []uint32
	uniforms       Uniforms
	texture        pipeline.HostImage
}

func rasterKernel(d pipeline.Draw) error {
	wu := d.Bindings.Words(GroupWorld, voxel.BindingUniforms)
	voxels := d.Bindings.Words(GroupWorld, voxel.BindingVoxels)
	eu := d.Bindings.Bytes(GroupEntity, BindingUniforms)
	cu := d.Bindings.Bytes(GroupCamera, 0)
	if len(wu) < 2 || voxels == nil || len(eu) < UniformsSize || len(cu) < CameraUniformsSize || d.Target == nil {
		return errUnbound
	}
	fs := fragmentState{
		size:           int32(wu[0]),
		voxelsPerMeter: math.Float32frombits(wu[1]),
		voxels:         voxels,
		uniforms:       UnmarshalUniforms(eu),
		texture:        d.Bindings.Image(GroupEntity, BindingTexture),
	}
	if uint64(len(voxels)) < uint64(fs.size)*uint64(fs.size)*uint64(fs.size) {
		return errUnbound
	}
	viewProjection := getMat4(cu)

	count := min(int(d.VertexCount), len(d.Vertices)/VertexStride)
	for t := 0; t+3 <= count; t += 3 {
		var tri [3]rasterVertex
		for k := range tri {
			tri[k] = vertexStage(d.Vertices[(t+k)*VertexStride:], fs.uniforms.Model, viewProjection)
		}
		rasterize(tri, d.Target, fs.fragment)
	}
	return nil
}

func vertexStage(b []byte, model, viewProjection mgl32.Mat4) rasterVertex {
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	world := model.Mul4x1(mgl32.Vec4{f(0), f(1), f(2), 1})
	return rasterVertex{
		clip:  viewProjection.Mul4x1(world),
		world: world.Vec3(),
		uv:    mgl32.Vec2{f(3), f(4)},
	}
}

// rasterize covers the pixels whose centres fall inside the triangle, for either winding.
func rasterize(tri [3]rasterVertex, target pipeline.HostImage, fragment func(world mgl32.Vec3, uv mgl32.Vec2)) {
	w, h := float32(target.Width()), float32(target.Height())
	var sx, sy, sz [3]float32
	for k, v := range tri {
		if v.clip.W() == 0 {
			return
		}
		ndc := v.clip.Vec3().Mul(1 / v.clip.W())
		sx[k] = (ndc.X() + 1) / 2 * w
		sy[k] = (1 - ndc.Y()) / 2 * h
		sz[k] = ndc.Z()
	}
	area := edge(sx[0], sy[0], sx[1], sy[1], sx[2], sy[2])
	if area == 0 {
		return
	}

	x0 := max(int(math.Floor(float64(min(sx[0], sx[1], sx[2])))), 0)
	x1 := min(int(math.Ceil(float64(max(sx[0], sx[1], sx[2])))), int(w)-1)
	y0 := max(int(math.Floor(float64(min(sy[0], sy[1], sy[2])))), 0)
	y1 := min(int(math.Ceil(float64(max(sy[0], sy[1], sy[2])))), int(h)-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			px, py := float32(x)+0.5, float32(y)+0.5
			b0 := edge(sx[1], sy[1], sx[2], sy[2], px, py) / area
			b1 := edge(sx[2], sy[2], sx[0], sy[0], px, py) / area
			b2 := 1 - b0 - b1
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}
			depth := b0*sz[0] + b1*sz[1] + b2*sz[2]
			if depth < 0 || depth > 1 {
				continue
			}
			world := tri[0].world.Mul(b0).Add(tri[1].world.Mul(b1)).Add(tri[2].world.Mul(b2))
			uv := tri[0].uv.Mul(b0).Add(tri[1].uv.Mul(b1)).Add(tri[2].uv.Mul(b2))
			fragment(world, uv)
			target.Store(uint32(x), uint32(y), [4]float32{1, 1, 1, 1})
		}
	}
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func (fs fragmentState) fragment(world mgl32.Vec3, uv mgl32.Vec2) {
	material := fs.uniforms.Material
	if material == uint32(voxel.MaterialTexture) && fs.texture != nil {
		tw, th := fs.texture.Width(), fs.texture.Height()
		u := mgl32.Clamp(uv.X(), 0, 1) * float32(tw-1)
		v := mgl32.Clamp(uv.Y(), 0, 1) * float32(th-1)
		if fs.texture.Load(uint32(u), uint32(v))[3] < 0.5 {
			material = 0
		}
	}
	if material == 0 {
		return
	}

	side := float32(fs.size) / fs.voxelsPerMeter / 2
	p := common.Vec3i{
		X: common.FloorToInt((world.X() + side) * fs.voxelsPerMeter),
		Y: common.FloorToInt((world.Y() + side) * fs.voxelsPerMeter),
		Z: common.FloorToInt((world.Z() + side) * fs.voxelsPerMeter),
	}
	if !p.InBounds(fs.size) {
		return
	}
	i := int(p.X) + int(p.Y)*int(fs.size) + int(p.Z)*int(fs.size)*int(fs.size)
	if voxel.Voxel(fs.voxels[i]).Material() == 0 {
		fs.voxels[i] = uint32(voxel.New(uint8(material), voxel.Flags(fs.uniforms.Flags)))
	}
}
