package voxel

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"
)

func TestVoxelPacking(t *testing.T) {
	v := New(8, FlagAnimation|FlagSand)
	if got := v.Material(); got != 8 {
		t.Errorf("Material() = %d, want 8", got)
	}
	if got := v.Flags(); got != FlagAnimation|FlagSand {
		t.Errorf("Flags() = %d, want %d", got, FlagAnimation|FlagSand)
	}
	if !v.Has(FlagSand) || v.Has(FlagCollision) {
		t.Errorf("Has() mismatch for %#x", uint32(v))
	}
	if v.Transient() {
		t.Errorf("Transient() = true for %#x", uint32(v))
	}
	if !New(MaterialEmpty, FlagNone).IsEmpty() {
		t.Errorf("IsEmpty() = false for the empty voxel")
	}
	if got := uint32(v | TransientBit); Voxel(got).Material() != 8 || !Voxel(got).Transient() {
		t.Errorf("transient bit disturbed material: %#x", got)
	}
}

func TestNewDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		size    uint32
		vpm     float32
		wantErr bool
	}{
		{"minimum", 4, 1, false},
		{"default", 256, 4, false},
		{"maximum", 1024, 8, false},
		{"too small", 2, 1, true},
		{"too large", 2048, 1, true},
		{"not power of two", 48, 1, true},
		{"zero scale", 64, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.size, tt.vpm)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDescriptor(%d, %v) error = %v, wantErr %v", tt.size, tt.vpm, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidDescriptor) {
					t.Errorf("error = %v, want ErrInvalidDescriptor", err)
				}
				return
			}
			s := uint64(tt.size)
			b := s / BrickSize
			if d.Capacity != s*s*s+b*b*b {
				t.Errorf("Capacity = %d, want %d", d.Capacity, s*s*s+b*b*b)
			}
		})
	}
}

func TestValidateRejectsShortCapacity(t *testing.T) {
	d, _ := NewDescriptor(16, 1)
	d.Capacity--
	if err := d.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("Validate() = %v, want ErrInvalidDescriptor", err)
	}
}

func TestIndexCoordRoundTrip(t *testing.T) {
	d, _ := NewDescriptor(16, 2)
	for _, p := range []common.Vec3i{{X: 0, Y: 0, Z: 0}, {X: 15, Y: 0, Z: 0}, {X: 0, Y: 15, Z: 0}, {X: 3, Y: 7, Z: 11}, {X: 15, Y: 15, Z: 15}} {
		i := d.Index(uint32(p.X), uint32(p.Y), uint32(p.Z))
		if got := d.Coord(i); got != p {
			t.Errorf("Coord(Index(%v)) = %v", p, got)
		}
	}
	if got := d.Index(1, 1, 1); got != 1+16+256 {
		t.Errorf("Index(1, 1, 1) = %d, want %d", got, 1+16+256)
	}
}

func TestBrickIndexIsMorton(t *testing.T) {
	d, _ := NewDescriptor(16, 1)
	tests := []struct {
		x, y, z uint32
		want    uint32
	}{
		{0, 0, 0, 0},
		{3, 3, 3, 0},
		{4, 0, 0, 1},
		{0, 4, 0, 2},
		{0, 0, 4, 4},
		{12, 12, 12, 63},
	}
	for _, tt := range tests {
		if got := d.BrickIndex(tt.x, tt.y, tt.z); got != tt.want {
			t.Errorf("BrickIndex(%d, %d, %d) = %d, want %d", tt.x, tt.y, tt.z, got, tt.want)
		}
	}
}

func TestWorldVoxelMapping(t *testing.T) {
	d, _ := NewDescriptor(16, 2)
	if got := d.Side(); got != 4 {
		t.Fatalf("Side() = %v, want 4", got)
	}
	tests := []struct {
		p    mgl32.Vec3
		want common.Vec3i
	}{
		{mgl32.Vec3{-4, -4, -4}, common.Vec3i{}},
		{mgl32.Vec3{0, 0, 0}, common.Vec3i{X: 8, Y: 8, Z: 8}},
		{mgl32.Vec3{3.99, 3.99, 3.99}, common.Vec3i{X: 15, Y: 15, Z: 15}},
		{mgl32.Vec3{-4.1, 0, 0}, common.Vec3i{X: -1, Y: 8, Z: 8}},
	}
	for _, tt := range tests {
		got := d.WorldToVoxel(tt.p)
		if got != tt.want {
			t.Errorf("WorldToVoxel(%v) = %v, want %v", tt.p, got, tt.want)
		}
		if d.Contains(got) != d.Contains(tt.want) {
			t.Errorf("Contains(%v) mismatch", got)
		}
	}
	c := common.Vec3i{X: 3, Y: 9, Z: 0}
	if got := d.WorldToVoxel(d.VoxelToWorld(c)); got != c {
		t.Errorf("WorldToVoxel(VoxelToWorld(%v)) = %v", c, got)
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"", EmptySource(64)},
		{"empty", EmptySource(64)},
		{" EMPTY ", EmptySource(64)},
		{"worlds/a.oxyv", FileSource("worlds/a.oxyv")},
	}
	for _, tt := range tests {
		if got := ParseSource(tt.in, 64); got != tt.want {
			t.Errorf("ParseSource(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	d, _ := NewDescriptor(8, 4)
	voxels := make([]Voxel, d.VoxelCount())
	for i := range voxels {
		if i%7 == 0 {
			voxels[i] = New(uint8(i%250), FlagCollision)
		}
	}
	path := filepath.Join(t.TempDir(), "nested", "world.oxyv")
	if err := WriteSnapshotFile(path, d, voxels); err != nil {
		t.Fatalf("WriteSnapshotFile() error = %v", err)
	}
	gotD, got, err := ReadSnapshotFile(path)
	if err != nil {
		t.Fatalf("ReadSnapshotFile() error = %v", err)
	}
	if gotD != d {
		t.Errorf("descriptor = %+v, want %+v", gotD, d)
	}
	for i := range voxels {
		if got[i] != voxels[i] {
			t.Fatalf("voxel %d = %#x, want %#x", i, uint32(got[i]), uint32(voxels[i]))
		}
	}
}

func TestSnapshotRejectsBadInput(t *testing.T) {
	d, _ := NewDescriptor(4, 1)
	if err := WriteSnapshot(&bytes.Buffer{}, d, make([]Voxel, 3)); !errors.Is(err, ErrSnapshotFormat) {
		t.Errorf("WriteSnapshot(short) = %v, want ErrSnapshotFormat", err)
	}

	var buf bytes.Buffer
	enc, _ := zstd.NewWriter(&buf)
	enc.Write([]byte(`{"version":99,"texture_size":4,"voxels_per_meter":1}` + "\n"))
	enc.Close()
	if _, _, err := ReadSnapshot(&buf); !errors.Is(err, ErrSnapshotFormat) {
		t.Errorf("ReadSnapshot(version 99) = %v, want ErrSnapshotFormat", err)
	}

	buf.Reset()
	enc, _ = zstd.NewWriter(&buf)
	enc.Write([]byte(`{"version":1,"texture_size":4,"voxels_per_meter":1}` + "\n" + "abcd"))
	enc.Close()
	if _, _, err := ReadSnapshot(&buf); !errors.Is(err, ErrSnapshotFormat) {
		t.Errorf("ReadSnapshot(truncated) = %v, want ErrSnapshotFormat", err)
	}
}

func newTestStore(t *testing.T) (renderer.Renderer, Store) {
	t.Helper()
	r := renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(2)))
	t.Cleanup(r.Release)
	s := NewStore(r, WithVoxelsPerMeter(2))
	t.Cleanup(s.Release)
	return r, s
}

func TestStoreLoadEmpty(t *testing.T) {
	r, s := newTestStore(t)
	if s.Loaded() || s.Provider() != nil {
		t.Fatalf("store loaded before Load")
	}
	if err := s.Load(EmptySource(16)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	d := s.Descriptor()
	if d.TextureSize != 16 || d.VoxelsPerMeter != 2 {
		t.Errorf("Descriptor() = %+v", d)
	}
	if got := s.Generation(); got != 1 {
		t.Errorf("Generation() = %d, want 1", got)
	}
	p := s.Provider()
	if got := p.Buffer(BindingVoxels).Size(); got != d.VoxelCount()*4 {
		t.Errorf("voxel buffer size = %d, want %d", got, d.VoxelCount()*4)
	}
	if got := p.Buffer(BindingBricks).Size(); got != d.BrickCount()*4 {
		t.Errorf("brick buffer size = %d, want %d", got, d.BrickCount()*4)
	}
	raw, err := r.ReadBuffer(p.Buffer(BindingUniforms))
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if !bytes.Equal(raw[:WorldUniformsSize], UniformsFor(d).Marshal()) {
		t.Errorf("world uniforms not uploaded")
	}
}

func TestStoreLoadRejectsInvalidSize(t *testing.T) {
	_, s := newTestStore(t)
	if err := s.Load(EmptySource(12)); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("Load(12) = %v, want ErrInvalidDescriptor", err)
	}
	if s.Loaded() {
		t.Errorf("failed Load left a world behind")
	}
}

func TestStoreEditsApplyAtPrepare(t *testing.T) {
	_, s := newTestStore(t)
	if err := s.Load(EmptySource(8)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sand := New(8, FlagSand)
	s.Fill(common.Vec3i{X: 1, Y: 2, Z: 3}, common.Vec3i{X: 3, Y: 2, Z: 4}, sand)
	s.Set(common.Vec3i{X: 7, Y: 7, Z: 7}, sand)
	s.Set(common.Vec3i{X: 8, Y: 0, Z: 0}, sand)
	s.Fill(common.Vec3i{X: -5, Y: 0, Z: 0}, common.Vec3i{X: 0, Y: 0, Z: 0}, sand)

	before, _ := s.ReadVoxels()
	for i, v := range before {
		if !v.IsEmpty() {
			t.Fatalf("voxel %d written before Prepare", i)
		}
	}
	if got := s.Pending(); got != 4 {
		t.Errorf("Pending() = %d, want 4", got)
	}

	written, err := s.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if written != 3*1*2+1+1 {
		t.Errorf("Prepare() wrote %d voxels, want 8", written)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after Prepare", s.Pending())
	}

	d := s.Descriptor()
	voxels, err := s.ReadVoxels()
	if err != nil {
		t.Fatalf("ReadVoxels() error = %v", err)
	}
	count := 0
	for i, v := range voxels {
		if v == sand {
			count++
			continue
		}
		if !v.IsEmpty() {
			t.Errorf("voxel %v = %#x", d.Coord(uint64(i)), uint32(v))
		}
	}
	if count != 8 {
		t.Errorf("sand voxels = %d, want 8", count)
	}
	if voxels[d.Index(2, 2, 4)] != sand || voxels[d.Index(0, 0, 0)] != sand {
		t.Errorf("filled box missing expected voxels")
	}
}

func TestStoreSaveAndReload(t *testing.T) {
	_, s := newTestStore(t)
	if err := s.Load(EmptySource(8)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	stone := New(3, FlagCollision)
	s.Fill(common.Vec3i{}, common.Vec3i{X: 7, Y: 0, Z: 7}, stone)
	if _, err := s.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "floor.oxyv")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, other := newTestStore(t)
	if err := other.Load(FileSource(path)); err != nil {
		t.Fatalf("Load(file) error = %v", err)
	}
	if got := other.Descriptor(); got != s.Descriptor() {
		t.Errorf("Descriptor() = %+v, want %+v", got, s.Descriptor())
	}
	voxels, _ := other.ReadVoxels()
	d := other.Descriptor()
	if voxels[d.Index(5, 0, 6)] != stone || !voxels[d.Index(5, 1, 6)].IsEmpty() {
		t.Errorf("reloaded world differs from the saved one")
	}

	if err := other.Load(EmptySource(8)); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := other.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}
