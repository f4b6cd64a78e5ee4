package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// triangleBuffer packs three positions, three uvs and three uint16 indices.
func triangleBuffer(indices []uint16) []byte {
	var buf bytes.Buffer
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	uvs := [][2]float32{{0, 0}, {1, 0}, {0, 1}}
	binary.Write(&buf, binary.LittleEndian, positions)
	binary.Write(&buf, binary.LittleEndian, uvs)
	binary.Write(&buf, binary.LittleEndian, indices)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func intPtr(v int) *int { return &v }

// triangleDoc is a two-node scene: a translated parent and a scaled child holding the mesh.
func triangleDoc(uri string, bufLen int, mode *int) map[string]any {
	prim := map[string]any{
		"attributes": map[string]int{"POSITION": 0, "TEXCOORD_0": 1},
		"indices":    2,
	}
	if mode != nil {
		prim["mode"] = *mode
	}
	buffer := map[string]any{"byteLength": bufLen}
	if uri != "" {
		buffer["uri"] = uri
	}
	return map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes": []any{
			map[string]any{"name": "root", "translation": []float32{10, 0, 0}, "children": []int{1}},
			map[string]any{"name": "tri", "scale": []float32{2, 2, 2}, "mesh": 0},
		},
		"meshes": []any{map[string]any{"name": "tri", "primitives": []any{prim}}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": gltfComponentTypeFloat, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": gltfComponentTypeFloat, "count": 3, "type": "VEC2"},
			map[string]any{"bufferView": 2, "componentType": gltfComponentTypeUnsignedShort, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 24},
			map[string]any{"buffer": 0, "byteOffset": 60, "byteLength": 6},
		},
		"buffers": []any{buffer},
	}
}

func writeGLTF(t *testing.T, doc map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "mesh.gltf")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func dataURI(b []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b)
}

func packGLB(t *testing.T, doc map[string]any, bin []byte) []byte {
	t.Helper()
	js, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	var out bytes.Buffer
	total := 12 + 8 + len(js) + 8 + len(bin)
	binary.Write(&out, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(js)), ChunkType: gltfGLBChunkJSON})
	out.Write(js)
	binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	out.Write(bin)
	return out.Bytes()
}

func wantTransformedTriangle(t *testing.T, positions []mgl32.Vec3) {
	t.Helper()
	want := []mgl32.Vec3{{10, 0, 0}, {12, 0, 0}, {10, 2, 0}}
	if len(positions) != len(want) {
		t.Fatalf("len(Positions) = %d, want %d", len(positions), len(want))
	}
	for i := range want {
		if !positions[i].ApproxEqual(want[i]) {
			t.Errorf("Positions[%d] = %v, want %v", i, positions[i], want[i])
		}
	}
}

func TestLoadGLTFBakesNodeTransforms(t *testing.T) {
	bin := triangleBuffer([]uint16{0, 1, 2})
	path := writeGLTF(t, triangleDoc(dataURI(bin), len(bin), nil))

	m, err := NewLoader(BackendTypeGLTF).Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.TriangleCount() != 1 {
		t.Errorf("TriangleCount() = %d, want 1", m.TriangleCount())
	}
	wantTransformedTriangle(t, m.Positions)
	if m.UVs[1] != (mgl32.Vec2{1, 0}) {
		t.Errorf("UVs[1] = %v, want [1 0]", m.UVs[1])
	}
}

func TestLoadGLTFExternalBuffer(t *testing.T) {
	bin := triangleBuffer([]uint16{0, 1, 2})
	path := writeGLTF(t, triangleDoc("mesh.bin", len(bin), nil))
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "mesh.bin"), bin, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m, err := NewLoader(BackendTypeGLTF).Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	wantTransformedTriangle(t, m.Positions)
}

func TestLoadReaderGLB(t *testing.T) {
	bin := triangleBuffer([]uint16{2, 1, 0})
	glb := packGLB(t, triangleDoc("", len(bin), nil), bin)

	l := NewLoader(BackendTypeGLTF)
	m, err := l.LoadReader("tri", bytes.NewReader(glb), true)
	if err != nil {
		t.Fatalf("LoadReader() error = %v", err)
	}
	if got := m.Indices; len(got) != 3 || got[0] != 2 || got[2] != 0 {
		t.Errorf("Indices = %v, want [2 1 0]", got)
	}
	if l.Get("tri") != m {
		t.Error("Get(tri) did not return the loaded mesh")
	}

	path := filepath.Join(t.TempDir(), "tri.glb")
	if err := os.WriteFile(path, glb, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := l.Load(path); err != nil {
		t.Errorf("Load(glb) error = %v", err)
	}
	if got := len(l.Meshes()); got != 2 {
		t.Errorf("len(Meshes()) = %d, want 2", got)
	}
}

func TestLoadCachesByPath(t *testing.T) {
	bin := triangleBuffer([]uint16{0, 1, 2})
	path := writeGLTF(t, triangleDoc(dataURI(bin), len(bin), nil))
	l := NewLoader(BackendTypeGLTF)

	first, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	second, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load(cached) error = %v", err)
	}
	if first != second {
		t.Error("Load() of a cached path returned a different mesh")
	}
}

func TestLoadRejects(t *testing.T) {
	bin := triangleBuffer([]uint16{0, 1, 2})

	badVersion := triangleDoc(dataURI(bin), len(bin), nil)
	badVersion["asset"] = map[string]any{"version": "1.0"}

	lines := triangleDoc(dataURI(bin), len(bin), intPtr(1))

	badIndex := triangleBuffer([]uint16{0, 1, 7})
	outOfRange := triangleDoc(dataURI(badIndex), len(badIndex), nil)

	short := triangleDoc(dataURI(bin[:40]), len(bin), nil)

	tests := []struct {
		name   string
		path   func(t *testing.T) string
		target error
	}{
		{"unsupported extension", func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "mesh.obj")
		}, ErrUnsupportedFormat},
		{"version", func(t *testing.T) string { return writeGLTF(t, badVersion) }, errInvalidGLTFVersion},
		{"no triangles", func(t *testing.T) string { return writeGLTF(t, lines) }, ErrNoGeometry},
		{"index out of range", func(t *testing.T) string { return writeGLTF(t, outOfRange) }, nil},
		{"short buffer", func(t *testing.T) string { return writeGLTF(t, short) }, errBufferSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(BackendTypeGLTF).Load(tt.path(t))
			if err == nil {
				t.Fatal("Load() error = nil, want an error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Load() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestMissingIndicesAreSequential(t *testing.T) {
	bin := triangleBuffer([]uint16{0, 1, 2})
	doc := triangleDoc(dataURI(bin), len(bin), nil)
	prim := doc["meshes"].([]any)[0].(map[string]any)["primitives"].([]any)[0].(map[string]any)
	delete(prim, "indices")
	delete(prim["attributes"].(map[string]int), "TEXCOORD_0")

	m, err := NewLoader(BackendTypeGLTF).Load(writeGLTF(t, doc))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for i, idx := range m.Indices {
		if idx != uint32(i) {
			t.Errorf("Indices[%d] = %d, want %d", i, idx, i)
		}
	}
	if m.UVs[2] != (mgl32.Vec2{}) {
		t.Errorf("UVs[2] = %v, want zero without TEXCOORD_0", m.UVs[2])
	}
}

func TestNodeMatrixOverridesTRS(t *testing.T) {
	n := &gltfNode{
		Matrix:      &[16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 3, 4, 5, 1},
		Translation: &[3]float32{100, 100, 100},
	}
	got := mgl32.TransformCoordinate(mgl32.Vec3{}, nodeTransform(n))
	if !got.ApproxEqual(mgl32.Vec3{3, 4, 5}) {
		t.Errorf("nodeTransform() origin = %v, want [3 4 5]", got)
	}
}
