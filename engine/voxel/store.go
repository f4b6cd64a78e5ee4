package voxel

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
)

// edit is a queued host write of one voxel value over an inclusive box.
type edit struct {
	min, max common.Vec3i
	value    Voxel
}

// storeImpl is the implementation of the Store interface.
type storeImpl struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	label    string
	group    int

	// voxelsPerMeter is the scale used for empty worlds.
	voxelsPerMeter float32

	descriptor Descriptor
	generation uint64
	provider   bind_group_provider.BindGroupProvider

	edits []edit
}

// Store owns the GPU-resident voxel world: the voxel and brick buffers and the world uniforms,
// exposed as one bind group.
//
// Host edits (Set, Fill) are queued and reach the GPU at the next Prepare, so they only ever
// enter the world at the prepare phase of a frame.
type Store interface {
	// Load replaces the world. The buffers are reallocated and the generation advances.
	//
	// Parameters:
	//   - src: an empty world or a snapshot file
	//
	// Returns:
	//   - error: if the source cannot be read or the buffers cannot be created
	Load(src Source) error

	// Loaded reports whether a world has been loaded.
	Loaded() bool

	// Descriptor returns the current world descriptor. The zero value before the first Load.
	Descriptor() Descriptor

	// Generation counts successful loads.
	Generation() uint64

	// Provider returns the world bind group, or nil before the first Load.
	Provider() bind_group_provider.BindGroupProvider

	// Set queues a single voxel write. Coordinates outside the world are ignored.
	Set(p common.Vec3i, v Voxel)

	// Fill queues a write of v over the inclusive box [min, max], clipped to the world.
	Fill(min, max common.Vec3i, v Voxel)

	// Pending returns the number of queued edits.
	Pending() int

	// Prepare uploads the queued edits.
	//
	// Returns:
	//   - int: the number of voxels written
	//   - error: if a buffer write fails
	Prepare() (int, error)

	// ReadVoxels copies the voxel buffer back to the host. It blocks and is meant for tooling
	// and tests, never for use inside a frame.
	ReadVoxels() ([]Voxel, error)

	// ReadBricks copies the brick occupancy buffer back to the host, like ReadVoxels.
	ReadBricks() ([]uint32, error)

	// Save writes a snapshot of the current world to path.
	Save(path string) error

	// Release frees the world buffers.
	Release()
}

var _ Store = &storeImpl{}

// NewStore creates a store with no world loaded.
//
// Parameters:
//   - r: the renderer that owns the buffers
//   - options: functional options to configure the store
//
// Returns:
//   - Store: the new store
func NewStore(r renderer.Renderer, options ...StoreBuilderOption) Store {
	s := &storeImpl{
		mu:             &sync.Mutex{},
		renderer:       r,
		label:          "voxel world",
		group:          1,
		voxelsPerMeter: 4,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *storeImpl) Load(src Source) error {
	d, voxels, err := src.open(s.voxelsPerMeter)
	if err != nil {
		return fmt.Errorf("voxel: load %s: %w", src, err)
	}

	provider := bind_group_provider.NewBindGroupProvider(s.label)
	sizes := map[int]uint64{
		BindingVoxels: d.VoxelCount() * 4,
		BindingBricks: d.BrickCount() * 4,
	}
	if err := s.renderer.InitBindGroup(provider, Layout(s.group), nil, sizes); err != nil {
		provider.Release()
		return fmt.Errorf("voxel: load %s: %w", src, err)
	}
	if err := s.renderer.WriteBuffer(provider.Buffer(BindingUniforms), 0, UniformsFor(d).Marshal()); err != nil {
		provider.Release()
		return fmt.Errorf("voxel: load %s: %w", src, err)
	}
	if voxels != nil {
		if err := s.renderer.WriteBuffer(provider.Buffer(BindingVoxels), 0, common.SliceToBytes(voxels)); err != nil {
			provider.Release()
			return fmt.Errorf("voxel: load %s: %w", src, err)
		}
	}

	s.mu.Lock()
	old := s.provider
	s.provider = provider
	s.descriptor = d
	s.generation++
	s.edits = nil
	s.mu.Unlock()
	if old != nil {
		old.Release()
	}

	common.Logger().Info("voxel world loaded", "source", src.String(), "texture_size", d.TextureSize, "capacity", d.Capacity)
	return nil
}

func (s *storeImpl) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

func (s *storeImpl) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

func (s *storeImpl) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *storeImpl) Provider() bind_group_provider.BindGroupProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *storeImpl) Set(p common.Vec3i, v Voxel) {
	s.Fill(p, p, v)
}

func (s *storeImpl) Fill(min, max common.Vec3i, v Voxel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, edit{min: min, max: max, value: v})
}

func (s *storeImpl) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

// clip intersects an edit box with the world. ok is false when nothing remains.
func clip(e edit, size int32) (lo, hi common.Vec3i, ok bool) {
	lo = common.Vec3i{X: max(min(e.min.X, e.max.X), 0), Y: max(min(e.min.Y, e.max.Y), 0), Z: max(min(e.min.Z, e.max.Z), 0)}
	hi = common.Vec3i{X: min(max(e.min.X, e.max.X), size-1), Y: min(max(e.min.Y, e.max.Y), size-1), Z: min(max(e.min.Z, e.max.Z), size-1)}
	return lo, hi, lo.X <= hi.X && lo.Y <= hi.Y && lo.Z <= hi.Z
}

func (s *storeImpl) Prepare() (int, error) {
	s.mu.Lock()
	edits := s.edits
	s.edits = nil
	d := s.descriptor
	provider := s.provider
	s.mu.Unlock()

	if provider == nil || len(edits) == 0 {
		return 0, nil
	}
	voxels := provider.Buffer(BindingVoxels)
	written := 0
	for _, e := range edits {
		lo, hi, ok := clip(e, int32(d.TextureSize))
		if !ok {
			continue
		}
		run := make([]Voxel, hi.X-lo.X+1)
		for i := range run {
			run[i] = e.value
		}
		data := common.SliceToBytes(run)
		for z := lo.Z; z <= hi.Z; z++ {
			for y := lo.Y; y <= hi.Y; y++ {
				offset := d.Index(uint32(lo.X), uint32(y), uint32(z)) * 4
				if err := s.renderer.WriteBuffer(voxels, offset, data); err != nil {
					return written, fmt.Errorf("voxel: write edit: %w", err)
				}
				written += len(run)
			}
		}
	}
	return written, nil
}

func (s *storeImpl) readWords(binding int) ([]uint32, error) {
	provider := s.Provider()
	if provider == nil {
		return nil, fmt.Errorf("voxel: no world loaded")
	}
	data, err := s.renderer.ReadBuffer(provider.Buffer(binding))
	if err != nil {
		return nil, fmt.Errorf("voxel: read back: %w", err)
	}
	return append([]uint32(nil), common.BytesToU32(data)...), nil
}

func (s *storeImpl) ReadVoxels() ([]Voxel, error) {
	words, err := s.readWords(BindingVoxels)
	if err != nil {
		return nil, err
	}
	voxels := make([]Voxel, len(words))
	for i, w := range words {
		voxels[i] = Voxel(w)
	}
	return voxels, nil
}

func (s *storeImpl) ReadBricks() ([]uint32, error) {
	return s.readWords(BindingBricks)
}

func (s *storeImpl) Save(path string) error {
	voxels, err := s.ReadVoxels()
	if err != nil {
		return err
	}
	d := s.Descriptor()
	if err := WriteSnapshotFile(path, d, voxels[:d.VoxelCount()]); err != nil {
		return err
	}
	common.Logger().Info("voxel world saved", "path", path, "texture_size", d.TextureSize)
	return nil
}

func (s *storeImpl) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != nil {
		s.provider.Release()
		s.provider = nil
	}
}
