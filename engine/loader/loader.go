// Package loader imports triangle meshes from model files for voxelization. The glTF backend merges
// every triangle primitive of a document's default scene into one voxelization.Mesh.
package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
)

// ErrUnsupportedFormat is returned for file extensions no backend reads.
var ErrUnsupportedFormat = errors.New("loader: unsupported mesh format")

// LoaderBackendType identifies the mesh file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

type loader struct {
	mu sync.RWMutex

	meshCache map[string]*voxelization.Mesh

	backend loaderBackend
}

// Loader loads and caches meshes. The file format is hidden behind a backend.
type Loader interface {
	// Load imports a mesh file and caches the result by path. A cached mesh is returned without
	// touching the file again. The backend is selected from the extension (.gltf/.glb).
	//
	// Parameters:
	//   - path: the file path to the mesh file
	//
	// Returns:
	//   - *voxelization.Mesh: the loaded and cached mesh
	//   - error: ErrUnsupportedFormat, ErrNoGeometry, or a decoding error
	Load(path string) (*voxelization.Mesh, error)

	// LoadReader imports a mesh from a stream and caches it under name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing file data
	//   - binary: true if the reader provides GLB data
	//
	// Returns:
	//   - *voxelization.Mesh: the loaded mesh
	//   - error: error if decoding fails
	LoadReader(name string, r io.Reader, binary bool) (*voxelization.Mesh, error)

	// Get returns a cached mesh, or nil.
	Get(name string) *voxelization.Mesh

	// Meshes returns a copy of the cache.
	Meshes() map[string]*voxelization.Mesh
}

var _ Loader = &loader{}

// NewLoader creates a Loader for the given backend type.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new Loader
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		meshCache: make(map[string]*voxelization.Mesh),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = gltfLoaderBackend{}
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*voxelization.Mesh, error) {
	if m := l.Get(path); m != nil {
		return m, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}
	m, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}

	l.store(path, m)
	common.Logger().Info("mesh loaded", "path", path, "triangles", m.TriangleCount())
	return m, nil
}

func (l *loader) LoadReader(name string, r io.Reader, binary bool) (*voxelization.Mesh, error) {
	if l.backend == nil {
		return nil, ErrUnsupportedFormat
	}
	m, err := l.backend.LoadReader(r, binary)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", name, err)
	}
	l.store(name, m)
	return m, nil
}

func (l *loader) store(name string, m *voxelization.Mesh) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meshCache[name] = m
}

func (l *loader) Get(name string) *voxelization.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Meshes() map[string]*voxelization.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*voxelization.Mesh, len(l.meshCache))
	for k, v := range l.meshCache {
		result[k] = v
	}
	return result
}

// resolveBackend selects the backend for a file extension.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		if l.backend != nil {
			return l.backend, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
