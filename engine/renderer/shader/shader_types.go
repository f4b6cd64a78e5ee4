package shader

import "github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"

// Stage is a bit set of shader stages a binding is visible to.
type Stage uint32

const (
	// StageVertex marks visibility to the vertex stage.
	StageVertex Stage = 1 << iota
	// StageFragment marks visibility to the fragment stage.
	StageFragment
	// StageCompute marks visibility to the compute stage.
	StageCompute
)

// BindingKind classifies a single @group/@binding resource.
type BindingKind int

const (
	// BindingKindUniform is a var<uniform> buffer.
	BindingKindUniform BindingKind = iota
	// BindingKindStorage is a var<storage, read_write> buffer.
	BindingKindStorage
	// BindingKindReadOnlyStorage is a var<storage, read> buffer.
	BindingKindReadOnlyStorage
	// BindingKindTexture is a sampled texture.
	BindingKindTexture
	// BindingKindStorageTexture is a texture_storage_* binding.
	BindingKindStorageTexture
	// BindingKindSampler is a filtering or comparison sampler.
	BindingKindSampler
)

// IsBuffer reports whether the binding is backed by a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingKindUniform || k == BindingKindStorage || k == BindingKindReadOnlyStorage
}

func (k BindingKind) String() string {
	switch k {
	case BindingKindUniform:
		return "uniform"
	case BindingKindStorage:
		return "storage"
	case BindingKindReadOnlyStorage:
		return "read-only-storage"
	case BindingKindTexture:
		return "texture"
	case BindingKindStorageTexture:
		return "storage-texture"
	case BindingKindSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// StorageAccess is the access mode of a storage texture binding.
type StorageAccess int

const (
	StorageAccessUndefined StorageAccess = iota
	StorageAccessWriteOnly
	StorageAccessReadOnly
	StorageAccessReadWrite
)

// BindingLayout describes one binding reflected from WGSL source.
type BindingLayout struct {
	// Binding is the @binding index.
	Binding int
	// Name is the WGSL variable name.
	Name string
	// Kind is the resource category.
	Kind BindingKind
	// Visibility holds the stages that declared the binding.
	Visibility Stage
	// MinBindingSize is the byte size of the bound type for buffers. For a runtime-sized array it
	// is the size of one element (or the fixed prefix of the containing struct).
	MinBindingSize uint64
	// RuntimeSized is true when the bound type ends in a runtime-sized array.
	RuntimeSized bool
	// Format is the texel format for storage textures.
	Format resource.TextureFormat
	// Access is the access mode for storage textures.
	Access StorageAccess
	// Comparison is true for sampler_comparison bindings.
	Comparison bool
}

// BindGroupLayout is the ordered set of bindings in one @group.
type BindGroupLayout struct {
	Group   int
	Entries []BindingLayout
}

// Entry returns the binding with the given index.
//
// Parameters:
//   - binding: the @binding index to look up
//
// Returns:
//   - BindingLayout: the entry, or the zero value if absent
//   - bool: true if the binding exists in this group
func (l BindGroupLayout) Entry(binding int) (BindingLayout, bool) {
	for _, e := range l.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return BindingLayout{}, false
}

// Merge returns the union of l and o, OR-ing visibility for bindings present in both. Render pipelines
// use it to combine the vertex and fragment views of a shared group.
func (l BindGroupLayout) Merge(o BindGroupLayout) BindGroupLayout {
	out := BindGroupLayout{Group: l.Group, Entries: append([]BindingLayout(nil), l.Entries...)}
	for _, e := range o.Entries {
		found := false
		for i := range out.Entries {
			if out.Entries[i].Binding == e.Binding {
				out.Entries[i].Visibility |= e.Visibility
				found = true
				break
			}
		}
		if !found {
			out.Entries = append(out.Entries, e)
		}
	}
	sortEntries(out.Entries)
	return out
}

// VertexFormat identifies the format of one vertex attribute.
type VertexFormat int

const (
	VertexFormatUndefined VertexFormat = iota
	VertexFormatFloat32
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatSint32
	VertexFormatSint32x2
	VertexFormatSint32x3
	VertexFormatSint32x4
	VertexFormatUint32
	VertexFormatUint32x2
	VertexFormatUint32x3
	VertexFormatUint32x4
)

// VertexAttribute is one @location field of a vertex input struct.
type VertexAttribute struct {
	Location int
	Format   VertexFormat
	Offset   uint64
}

// VertexLayout is a tightly packed per-vertex buffer layout.
type VertexLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// vertexFormatInfo holds the vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format VertexFormat
	size   uint64
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
