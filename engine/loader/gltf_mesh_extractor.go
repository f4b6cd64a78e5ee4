package loader

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoGeometry is returned for documents without a single triangle primitive.
var ErrNoGeometry = errors.New("loader: document has no triangle geometry")

// gltfMeshExtractor flattens the default scene of a parsed document into one voxelization mesh.
// Node transforms are baked into the positions so the mesh is in model space.
type gltfMeshExtractor struct {
	parser *gltfParser
	mesh   *voxelization.Mesh
}

func newGLTFMeshExtractor(parser *gltfParser) *gltfMeshExtractor {
	return &gltfMeshExtractor{parser: parser}
}

// Extract walks the scene hierarchy and merges every triangle primitive it reaches.
func (e *gltfMeshExtractor) Extract() (*voxelization.Mesh, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	e.mesh = &voxelization.Mesh{}

	if len(doc.Nodes) == 0 {
		for i := range doc.Meshes {
			if err := e.appendMesh(i, mgl32.Ident4()); err != nil {
				return nil, err
			}
		}
	} else {
		visited := make([]bool, len(doc.Nodes))
		for _, root := range sceneRoots(doc) {
			if err := e.walk(root, mgl32.Ident4(), visited); err != nil {
				return nil, err
			}
		}
	}

	if e.mesh.TriangleCount() == 0 {
		return nil, ErrNoGeometry
	}
	return e.mesh, nil
}

// sceneRoots returns the root nodes of the default scene, or every parentless node when the
// document declares no scenes.
func sceneRoots(doc *gltfDocument) []int {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}

	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

func (e *gltfMeshExtractor) walk(index int, parent mgl32.Mat4, visited []bool) error {
	doc := e.parser.Document()
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if visited[index] {
		return fmt.Errorf("node %d is reachable twice", index)
	}
	visited[index] = true

	node := &doc.Nodes[index]
	world := parent.Mul4(nodeTransform(node))
	if node.Mesh != nil {
		if err := e.appendMesh(*node.Mesh, world); err != nil {
			return fmt.Errorf("node %q: %w", node.Name, err)
		}
	}
	for _, c := range node.Children {
		if err := e.walk(c, world, visited); err != nil {
			return err
		}
	}
	return nil
}

// nodeTransform returns the local matrix of a node: Matrix when set, else T * R * S.
func nodeTransform(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	m := mgl32.Ident4()
	if t := n.Translation; t != nil {
		m = m.Mul4(mgl32.Translate3D(t[0], t[1], t[2]))
	}
	if r := n.Rotation; r != nil {
		m = m.Mul4(mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize().Mat4())
	}
	if s := n.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

func (e *gltfMeshExtractor) appendMesh(index int, transform mgl32.Mat4) error {
	doc := e.parser.Document()
	if index < 0 || index >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", index)
	}
	for i := range doc.Meshes[index].Primitives {
		prim := &doc.Meshes[index].Primitives[i]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			continue
		}
		if err := e.appendPrimitive(prim, transform); err != nil {
			return fmt.Errorf("mesh %q primitive %d: %w", doc.Meshes[index].Name, i, err)
		}
	}
	return nil
}

func (e *gltfMeshExtractor) appendPrimitive(prim *gltfPrimitive, transform mgl32.Mat4) error {
	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return errors.New("missing POSITION attribute")
	}
	positions, err := e.parser.ReadVec3Accessor(posAccessor)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var uvs [][2]float32
	if uvAccessor, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = e.parser.ReadVec2Accessor(uvAccessor); err != nil {
			return fmt.Errorf("uvs: %w", err)
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = e.parser.ReadIndicesAccessor(*prim.Indices); err != nil {
			return fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	base := uint32(len(e.mesh.Positions))
	for i, p := range positions {
		e.mesh.Positions = append(e.mesh.Positions, mgl32.TransformCoordinate(mgl32.Vec3(p), transform))
		var uv mgl32.Vec2
		if i < len(uvs) {
			uv = uvs[i]
		}
		e.mesh.UVs = append(e.mesh.UVs, uv)
	}
	for _, idx := range indices[:len(indices)/3*3] {
		if int(idx) >= len(positions) {
			return fmt.Errorf("index %d out of range for %d vertices", idx, len(positions))
		}
		e.mesh.Indices = append(e.mesh.Indices, base+idx)
	}
	return nil
}
