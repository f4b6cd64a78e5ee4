// annotations.go defines the annotation types, argument constants and parser for the Oxy WGSL
// pre-processor. Annotations are single-line WGSL comments prefixed with @oxy: that drive shared
// source injection, bind group declaration and provider role registration. The parsed results are
// consumed by the passes to find their bindings without matching on variable names.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix marks an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects a registered WGSL snippet (struct definitions or helper functions)
	// at the annotation site. It produces no declaration.
	//
	// Syntax: //@oxy:include <name>
	//
	// Example: //@oxy:include voxel_common
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration for a registered
	// struct type and records it in the declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 0 storage_uniform uniforms compute_uniforms
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider records which provider and role own a hand-written binding directly
	// below it. It produces no WGSL output.
	//
	// Syntax:
	//   //@oxy:provider <group> <binding> <provider_identity>
	//   //@oxy:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Example: //@oxy:provider 1 1 world voxels
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation is a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = snippet name
	//   - group:    [0] = address space, [1] = var name, [2] = type name (optionally array<...>)
	//   - provider: [0] = provider identity, [1] = binding role (optional)
	Args []AnnotationArg

	// Line is the 1-based source line of the annotation.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// Role returns the binding role of a provider annotation, or "" when none was given.
func (a Annotation) Role() AnnotationArg {
	if a.Type != AnnotationTypeProvider || len(a.Args) < 2 {
		return ""
	}
	return a.Args[1]
}

// AnnotationArg is a typed string used as an annotation argument.
type AnnotationArg string

// ── Snippet and struct names ───────────────────────────────────────────────────
// Registered by the package that owns the matching Go type (see RegisterInclude).

const (
	// AnnotationArgComputeUniforms is the ComputeUniforms struct (time, delta_time).
	AnnotationArgComputeUniforms AnnotationArg = "compute_uniforms"
	// AnnotationArgTraceUniforms is the per-view TraceUniforms struct.
	AnnotationArgTraceUniforms AnnotationArg = "trace_uniforms"
	// AnnotationArgWorldUniforms is the WorldUniforms struct describing the voxel texture.
	AnnotationArgWorldUniforms AnnotationArg = "world_uniforms"
	// AnnotationArgVoxelCommon holds voxel packing constants and index helpers.
	AnnotationArgVoxelCommon AnnotationArg = "voxel_common"
	// AnnotationArgPhysicsBody is the PhysicsBuffer header followed by 64-byte PhysicsBody slots.
	AnnotationArgPhysicsBody AnnotationArg = "physics_body"
	// AnnotationArgAnimationBuffer is the animation instruction buffer read by the animation pass.
	AnnotationArgAnimationBuffer AnnotationArg = "animation_buffer"
	// AnnotationArgVoxelizationUniforms is the per-entity voxelization material struct.
	AnnotationArgVoxelizationUniforms AnnotationArg = "voxelization_uniforms"
	// AnnotationArgMeshVertex is the voxelization mesh vertex input.
	AnnotationArgMeshVertex AnnotationArg = "mesh_vertex"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	annotationArgStorageTypeUniform   AnnotationArg = "storage_uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────

const (
	// AnnotationArgCompute identifies the global compute group (uniforms, physics, animation).
	AnnotationArgCompute AnnotationArg = "compute"
	// AnnotationArgWorld identifies the voxel world group (uniforms, voxels, bricks).
	AnnotationArgWorld AnnotationArg = "world"
	// AnnotationArgView identifies a per-view group (trace uniforms and attachments).
	AnnotationArgView AnnotationArg = "view"
	// AnnotationArgVoxelization identifies the per-entity voxelization group.
	AnnotationArgVoxelization AnnotationArg = "voxelization"
	// AnnotationArgPost identifies the post-processing group (tonemapping, upscaling).
	AnnotationArgPost AnnotationArg = "post"
)

// ── Binding role arguments ─────────────────────────────────────────────────────

const (
	AnnotationArgRoleUniforms  AnnotationArg = "uniforms"
	AnnotationArgRolePhysics   AnnotationArg = "physics"
	AnnotationArgRoleAnimation AnnotationArg = "animation"
	AnnotationArgRoleVoxels    AnnotationArg = "voxels"
	AnnotationArgRoleBricks    AnnotationArg = "bricks"
	AnnotationArgRoleNormal    AnnotationArg = "normal"
	AnnotationArgRolePosition  AnnotationArg = "position"
	AnnotationArgRoleColor     AnnotationArg = "color"
	AnnotationArgRoleTexture   AnnotationArg = "texture"
	AnnotationArgRoleSampler   AnnotationArg = "sampler"
	AnnotationArgRoleSource    AnnotationArg = "source"
	AnnotationArgRoleTarget    AnnotationArg = "target"
)

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

var validProviderIdentities = []AnnotationArg{
	AnnotationArgCompute,
	AnnotationArgWorld,
	AnnotationArgView,
	AnnotationArgVoxelization,
	AnnotationArgPost,
}

var validBindingRoles = []AnnotationArg{
	AnnotationArgRoleUniforms,
	AnnotationArgRolePhysics,
	AnnotationArgRoleAnimation,
	AnnotationArgRoleVoxels,
	AnnotationArgRoleBricks,
	AnnotationArgRoleNormal,
	AnnotationArgRolePosition,
	AnnotationArgRoleColor,
	AnnotationArgRoleTexture,
	AnnotationArgRoleSampler,
	AnnotationArgRoleSource,
	AnnotationArgRoleTarget,
}

// parseAnnotation parses a single WGSL line. It returns nil with no error for lines without the
// annotation prefix. Snippet and struct names are checked later against the include registry.
//
// Parameters:
//   - line: the raw WGSL source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{Type: annotationTypeInclude, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, var name, type)", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case AnnotationTypeProvider:
		if len(args) < 4 || len(args) > 5 {
			return nil, fmt.Errorf("line %d: @oxy provider annotation requires three or four arguments (group, binding, provider identity[, binding role])", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validProviderIdentities, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @oxy provider annotation", lineNum, args[3])
		}
		providerArgs := []AnnotationArg{AnnotationArg(args[3])}
		if len(args) == 5 {
			if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
				return nil, fmt.Errorf("line %d: unknown binding role %q in @oxy provider annotation", lineNum, args[4])
			}
			providerArgs = append(providerArgs, AnnotationArg(args[4]))
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    providerArgs,
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(groupStr, bindingStr string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupStr)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q: %w", lineNum, groupStr, err)
	}
	binding, err := strconv.Atoi(bindingStr)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q: %w", lineNum, bindingStr, err)
	}
	return group, binding, nil
}
