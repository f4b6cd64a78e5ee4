package voxel

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is the snapshot format version written by WriteSnapshot.
const SnapshotVersion = 1

var ErrSnapshotFormat = errors.New("voxel: bad snapshot")

// snapshotHeader is the JSON line at the start of a decompressed snapshot.
type snapshotHeader struct {
	Version        int     `json:"version"`
	TextureSize    uint32  `json:"texture_size"`
	VoxelsPerMeter float32 `json:"voxels_per_meter"`
}

// WriteSnapshot writes a zstd-compressed snapshot: a JSON header line followed by TextureSize³
// little-endian voxel words.
//
// Parameters:
//   - w: the destination
//   - d: the world descriptor
//   - voxels: exactly d.VoxelCount() voxels in Index order
//
// Returns:
//   - error: if the voxel count does not match or writing fails
func WriteSnapshot(w io.Writer, d Descriptor, voxels []Voxel) error {
	if uint64(len(voxels)) != d.VoxelCount() {
		return fmt.Errorf("%w: %d voxels for texture size %d", ErrSnapshotFormat, len(voxels), d.TextureSize)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snapshotHeader{Version: SnapshotVersion, TextureSize: d.TextureSize, VoxelsPerMeter: d.VoxelsPerMeter})
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	var word [4]byte
	for _, v := range voxels {
		binary.LittleEndian.PutUint32(word[:], uint32(v))
		if _, err := bw.Write(word[:]); err != nil {
			enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot reads a snapshot written by WriteSnapshot.
//
// Parameters:
//   - r: the compressed source
//
// Returns:
//   - Descriptor: the world descriptor
//   - []Voxel: the voxels in Index order
//   - error: ErrSnapshotFormat for malformed input
func ReadSnapshot(r io.Reader) (Descriptor, []Voxel, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Descriptor{}, nil, err
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return Descriptor{}, nil, fmt.Errorf("%w: header: %v", ErrSnapshotFormat, err)
	}
	var h snapshotHeader
	if err := json.Unmarshal(line, &h); err != nil {
		return Descriptor{}, nil, fmt.Errorf("%w: header: %v", ErrSnapshotFormat, err)
	}
	if h.Version != SnapshotVersion {
		return Descriptor{}, nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotFormat, h.Version)
	}
	d, err := NewDescriptor(h.TextureSize, h.VoxelsPerMeter)
	if err != nil {
		return Descriptor{}, nil, fmt.Errorf("%w: %v", ErrSnapshotFormat, err)
	}

	raw := make([]byte, d.VoxelCount()*4)
	if _, err := io.ReadFull(br, raw); err != nil {
		return Descriptor{}, nil, fmt.Errorf("%w: voxel data: %v", ErrSnapshotFormat, err)
	}
	voxels := make([]Voxel, d.VoxelCount())
	for i := range voxels {
		voxels[i] = Voxel(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return d, voxels, nil
}

// WriteSnapshotFile writes a snapshot to path, creating parent directories.
func WriteSnapshotFile(path string, d Descriptor, voxels []Voxel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, d, voxels); err != nil {
		f.Close()
		return fmt.Errorf("voxel: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadSnapshotFile reads a snapshot from path.
func ReadSnapshotFile(path string) (Descriptor, []Voxel, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, nil, err
	}
	defer f.Close()
	d, voxels, err := ReadSnapshot(f)
	if err != nil {
		return Descriptor{}, nil, fmt.Errorf("voxel: read %s: %w", path, err)
	}
	return d, voxels, nil
}
