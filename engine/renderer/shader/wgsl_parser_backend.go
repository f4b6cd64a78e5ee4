package shader

import (
	"strconv"
	"strings"
)

// wgslPrimitiveLayoutMap maps WGSL scalar, vector, matrix and atomic types to their size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},
	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},
	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// structSizes is the result of resolving every struct in a shader.
type structSizes struct {
	// known maps struct names to their layout. A struct ending in a runtime-sized array records its
	// fixed prefix (or one element when the array is the only member).
	known map[string]wgslTypeLayout
	// runtime marks structs whose last member is a runtime-sized array.
	runtime map[string]bool
}

// roundUpAlign rounds value up to the next multiple of alignment (a power of two).
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment. Runtime-sized arrays
// resolve to a single element stride so callers can scale by element count.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "u32", "PhysicsBody", "array<vec4<f32>, 4>"
//   - knownTypes: struct layouts resolved so far
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return wgslTypeLayout{}, false
	}
	inner = strings.TrimSuffix(inner, ">")
	elemType, countStr, fixed := cutTopLevelComma(inner)

	elem, ok := resolveTypeLayout(strings.TrimSpace(elemType), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if !fixed {
		return wgslTypeLayout{stride, elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{count * stride, elem.align}, true
}

// cutTopLevelComma splits "T, N" at the last comma outside angle brackets.
func cutTopLevelComma(s string) (before, after string, found bool) {
	parts := splitAtTopLevelCommas(s)
	if len(parts) < 2 {
		return s, "", false
	}
	return strings.Join(parts[:len(parts)-1], ","), parts[len(parts)-1], true
}

// computeStructLayout lays out one struct using WGSL rules: each field at its next aligned offset,
// total size rounded to the largest member alignment. A trailing runtime-sized array contributes
// nothing to the size and sets runtime.
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (layout wgslTypeLayout, runtime bool, ok bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for i, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, resolved := resolveTypeLayout(field.typeName, knownTypes)
		if !resolved {
			return wgslTypeLayout{}, false, false
		}
		if i == len(ps.fields)-1 && strings.HasPrefix(field.typeName, "array<") && !strings.Contains(field.typeName, ",") {
			offset = roundUpAlign(fieldLayout.align, offset)
			maxAlign = max(maxAlign, fieldLayout.align)
			if offset == 0 {
				return fieldLayout, true, true
			}
			return wgslTypeLayout{offset, maxAlign}, true, true
		}
		offset = roundUpAlign(fieldLayout.align, offset) + fieldLayout.size
		maxAlign = max(maxAlign, fieldLayout.align)
	}
	return wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, false, true
}

// computeStructSizes resolves all structs, iterating until no more progress is made so that structs
// nesting other structs resolve regardless of declaration order.
func computeStructSizes(structs []parsedStruct) structSizes {
	out := structSizes{
		known:   make(map[string]wgslTypeLayout, len(structs)),
		runtime: make(map[string]bool),
	}
	remaining := append([]parsedStruct(nil), structs...)
	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			layout, runtime, ok := computeStructLayout(ps, out.known)
			if !ok {
				next = append(next, ps)
				continue
			}
			out.known[ps.name] = layout
			if runtime {
				out.runtime[ps.name] = true
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return out
}

// classifyResource builds a BindingLayout from a parsed declaration's address space and type.
//
// Parameters:
//   - binding: the @binding index
//   - visibility: the declaring stage
//   - addressSpace: the var<...> contents, empty for handle types
//   - typeName: the declared WGSL type
//
// Returns:
//   - BindingLayout: the classified entry (Name is filled by the caller)
func classifyResource(binding int, visibility Stage, addressSpace, typeName string) BindingLayout {
	entry := BindingLayout{Binding: binding, Visibility: visibility}

	switch {
	case addressSpace == "uniform":
		entry.Kind = BindingKindUniform
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			entry.Kind = BindingKindStorage
		} else {
			entry.Kind = BindingKindReadOnlyStorage
		}
	case typeName == "sampler":
		entry.Kind = BindingKindSampler
	case typeName == "sampler_comparison":
		entry.Kind = BindingKindSampler
		entry.Comparison = true
	case strings.HasPrefix(typeName, "texture_storage_"):
		entry.Kind = BindingKindStorageTexture
		_, params := splitTypeParams(typeName)
		format, access, _ := strings.Cut(params, ",")
		entry.Format = wgslTexelFormatMap[strings.TrimSpace(format)]
		entry.Access = wgslStorageAccessMap[strings.TrimSpace(access)]
	case strings.HasPrefix(typeName, "texture_"):
		entry.Kind = BindingKindTexture
	}
	return entry
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}
