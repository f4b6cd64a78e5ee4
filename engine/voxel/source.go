package voxel

import (
	"fmt"
	"strings"
)

// SourceKind selects where a world is loaded from.
type SourceKind int

const (
	// SourceEmpty creates an empty world of a given size.
	SourceEmpty SourceKind = iota
	// SourceFile loads a snapshot written by Store.Save.
	SourceFile
)

// Source describes a world to load.
type Source struct {
	Kind SourceKind
	// Size is the texture size of an empty world.
	Size uint32
	// Path is the snapshot path of a file world.
	Path string
}

// EmptySource returns a source for an empty world.
func EmptySource(size uint32) Source {
	return Source{Kind: SourceEmpty, Size: size}
}

// FileSource returns a source for a snapshot file.
func FileSource(path string) Source {
	return Source{Kind: SourceFile, Path: path}
}

// ParseSource maps the "empty" sentinel (or an empty string) to an empty world of the given size
// and anything else to a snapshot path.
//
// Parameters:
//   - s: "empty" or a file path
//   - size: the texture size used for empty worlds
//
// Returns:
//   - Source: the parsed source
func ParseSource(s string, size uint32) Source {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "empty") {
		return EmptySource(size)
	}
	return FileSource(trimmed)
}

func (s Source) String() string {
	if s.Kind == SourceFile {
		return s.Path
	}
	return fmt.Sprintf("empty(%d)", s.Size)
}

// open resolves the source into a descriptor and its initial voxels. Empty worlds return nil voxels.
func (s Source) open(voxelsPerMeter float32) (Descriptor, []Voxel, error) {
	if s.Kind == SourceFile {
		return ReadSnapshotFile(s.Path)
	}
	d, err := NewDescriptor(s.Size, voxelsPerMeter)
	return d, nil, err
}
