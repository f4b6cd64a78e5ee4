package voxelization

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is an indexed triangle list in model space.
type Mesh struct {
	Positions []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Vertices expands the index list into a flat vertex stream of VertexStride-byte MeshVertex
// records. Missing UVs are zero.
//
// Returns:
//   - []byte: the vertex buffer contents
//   - uint32: the vertex count
func (m *Mesh) Vertices() ([]byte, uint32) {
	count := m.TriangleCount() * 3
	buf := make([]byte, count*VertexStride)
	for i, index := range m.Indices[:count] {
		var p mgl32.Vec3
		var uv mgl32.Vec2
		if int(index) < len(m.Positions) {
			p = m.Positions[index]
		}
		if int(index) < len(m.UVs) {
			uv = m.UVs[index]
		}
		off := i * VertexStride
		for c := range 3 {
			binary.LittleEndian.PutUint32(buf[off+c*4:], math.Float32bits(p[c]))
		}
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(uv[0]))
		binary.LittleEndian.PutUint32(buf[off+16:], math.Float32bits(uv[1]))
	}
	return buf, uint32(count)
}

// UVSphere builds a sphere of the given radius centred on the origin.
//
// Parameters:
//   - radius: the sphere radius in metres
//   - sectors: the number of longitude segments, at least 3
//   - stacks: the number of latitude segments, at least 2
//
// Returns:
//   - *Mesh: the sphere
func UVSphere(radius float32, sectors, stacks int) *Mesh {
	sectors, stacks = max(sectors, 3), max(stacks, 2)
	m := &Mesh{}
	for i := 0; i <= stacks; i++ {
		phi := math.Pi/2 - math.Pi*float64(i)/float64(stacks)
		y := radius * float32(math.Sin(phi))
		ring := radius * float32(math.Cos(phi))
		for j := 0; j <= sectors; j++ {
			theta := 2 * math.Pi * float64(j) / float64(sectors)
			m.Positions = append(m.Positions, mgl32.Vec3{ring * float32(math.Cos(theta)), y, ring * float32(math.Sin(theta))})
			m.UVs = append(m.UVs, mgl32.Vec2{float32(j) / float32(sectors), float32(i) / float32(stacks)})
		}
	}
	row := uint32(sectors + 1)
	for i := range uint32(stacks) {
		for j := range uint32(sectors) {
			a, b := i*row+j, (i+1)*row+j
			if i != 0 {
				m.Indices = append(m.Indices, a, b, a+1)
			}
			if i != uint32(stacks)-1 {
				m.Indices = append(m.Indices, a+1, b, b+1)
			}
		}
	}
	return m
}

// Box builds an axis-aligned box centred on the origin.
func Box(halfSize mgl32.Vec3) *Mesh {
	h := halfSize
	corners := [8]mgl32.Vec3{
		{-h[0], -h[1], -h[2]}, {h[0], -h[1], -h[2]}, {h[0], h[1], -h[2]}, {-h[0], h[1], -h[2]},
		{-h[0], -h[1], h[2]}, {h[0], -h[1], h[2]}, {h[0], h[1], h[2]}, {-h[0], h[1], h[2]},
	}
	faces := [6][4]int{
		{0, 3, 2, 1}, {4, 5, 6, 7}, // -z, +z
		{0, 4, 7, 3}, {1, 2, 6, 5}, // -x, +x
		{0, 1, 5, 4}, {3, 7, 6, 2}, // -y, +y
	}
	quadUV := [4]mgl32.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	m := &Mesh{}
	for _, f := range faces {
		base := uint32(len(m.Positions))
		for k, c := range f {
			m.Positions = append(m.Positions, corners[c])
			m.UVs = append(m.UVs, quadUV[k])
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}
