package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
)

// loaderBackend decodes one mesh file format. Concrete implementations (e.g. gltfLoaderBackend)
// handle the format details.
type loaderBackend interface {
	// Load decodes the file at path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *voxelization.Mesh: the merged mesh of the file's default scene
	//   - error: error if decoding fails
	Load(path string) (*voxelization.Mesh, error)

	// LoadReader decodes a stream.
	//
	// Parameters:
	//   - r: the reader providing file data
	//   - binary: true for the format's binary container (GLB for glTF)
	//
	// Returns:
	//   - *voxelization.Mesh: the merged mesh
	//   - error: error if decoding fails
	LoadReader(r io.Reader, binary bool) (*voxelization.Mesh, error)
}

// gltfLoaderBackend reads .gltf and .glb files.
type gltfLoaderBackend struct{}

var _ loaderBackend = gltfLoaderBackend{}

func (gltfLoaderBackend) Load(path string) (*voxelization.Mesh, error) {
	p := newGLTFParser()
	if err := p.Parse(path); err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(p).Extract()
}

func (gltfLoaderBackend) LoadReader(r io.Reader, binary bool) (*voxelization.Mesh, error) {
	p := newGLTFParser()
	if err := p.ParseReader(r, binary); err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(p).Extract()
}
