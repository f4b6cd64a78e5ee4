package shader

import (
	"fmt"
	"os"

	"github.com/gogpu/naga"
)

// ShaderType identifies which pipeline stage a shader feeds.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

// Stage returns the visibility stage matching the shader type.
func (t ShaderType) Stage() Stage {
	switch t {
	case ShaderTypeVertex:
		return StageVertex
	case ShaderTypeFragment:
		return StageFragment
	default:
		return StageCompute
	}
}

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	layouts       map[int]BindGroupLayout
	vertexLayouts []VertexLayout
	workGroupSize [3]uint32
	entryPoint    string

	pp PreProcessor
}

// Shader is a pre-processed WGSL shader together with the reflection data pipelines and bind groups
// are built from.
type Shader interface {
	// Key returns the unique identifier for this shader.
	Key() string

	// Source returns the pre-processed WGSL source.
	Source() string

	// ShaderType returns the stage this shader was parsed for.
	ShaderType() ShaderType

	// EntryPoint returns the entry point function name for the shader's stage.
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size of a compute shader, or [0, 0, 0] for other stages.
	WorkgroupSize() [3]uint32

	// BindGroupLayout returns the reflected layout of one group.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - BindGroupLayout: the layout, or an empty layout for the group if not declared
	//   - bool: true if the shader declares the group
	BindGroupLayout(group int) (BindGroupLayout, bool)

	// BindGroupLayouts returns every reflected group layout keyed by group index.
	BindGroupLayouts() map[int]BindGroupLayout

	// BindGroupFromVarName returns the binding index of a variable within a group.
	//
	// Parameters:
	//   - group: the @group index
	//   - varName: the WGSL variable name
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// VertexLayouts returns the vertex input layouts of a vertex shader in declaration order.
	VertexLayouts() []VertexLayout

	// Declarations returns the @oxy group and provider annotations found in the source.
	Declarations() []Annotation

	// ProviderBinding finds the group and binding annotated with the given provider identity and role.
	//
	// Parameters:
	//   - identity: the provider identity, e.g. AnnotationArgWorld
	//   - role: the binding role, e.g. AnnotationArgRoleVoxels
	//
	// Returns:
	//   - group, binding: the location of the binding
	//   - ok: false if no matching annotation exists
	ProviderBinding(identity, role AnnotationArg) (group, binding int, ok bool)

	// ProviderGroup returns the group index owned by a provider identity.
	ProviderGroup(identity AnnotationArg) (int, bool)

	// Validate compiles the source with naga and returns any front-end or validation error.
	Validate() error
}

var _ Shader = &shader{}

// NewShader pre-processes and reflects WGSL source.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage to reflect the source for
//   - source: the raw WGSL source, possibly containing @oxy annotations
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if pre-processing fails or the stage has no entry point
func NewShader(key string, shaderType ShaderType, source string) (Shader, error) {
	s := &shader{
		key:        key,
		shaderType: shaderType,
		pp:         NewPreProcessor(),
	}
	if err := s.parseSource(source); err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return s, nil
}

// MustShader is NewShader for embedded sources. It panics on error.
func MustShader(key string, shaderType ShaderType, source string) Shader {
	s, err := NewShader(key, shaderType, source)
	if err != nil {
		panic(fmt.Sprintf("shader: %v", err))
	}
	return s
}

// NewShaderFromPath reads WGSL source from disk and parses it with NewShader.
func NewShaderFromPath(key string, shaderType ShaderType, path string) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: failed to read source file %q: %w", key, path, err)
	}
	return NewShader(key, shaderType, string(data))
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayout(group int) (BindGroupLayout, bool) {
	l, ok := s.layouts[group]
	if !ok {
		return BindGroupLayout{Group: group}, false
	}
	return l, true
}

func (s *shader) BindGroupLayouts() map[int]BindGroupLayout {
	return s.layouts
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for _, e := range s.layouts[group].Entries {
		if e.Name == varName {
			return e.Binding, true
		}
	}
	return -1, false
}

func (s *shader) VertexLayouts() []VertexLayout {
	return s.vertexLayouts
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

func (s *shader) ProviderBinding(identity, role AnnotationArg) (int, int, bool) {
	for _, d := range s.pp.Declarations() {
		if d.Type != AnnotationTypeProvider || d.Args[0] != identity || d.Role() != role {
			continue
		}
		return *d.Group, *d.Binding, true
	}
	return -1, -1, false
}

func (s *shader) ProviderGroup(identity AnnotationArg) (int, bool) {
	for _, d := range s.pp.Declarations() {
		if d.Type == AnnotationTypeProvider && d.Args[0] == identity {
			return *d.Group, true
		}
	}
	return -1, false
}

func (s *shader) Validate() error {
	if _, err := naga.Compile(s.source); err != nil {
		return fmt.Errorf("shader %s: %w", s.key, err)
	}
	return nil
}

// parseSource pre-processes the source and extracts the entry point, group layouts, and either the
// workgroup size (compute) or vertex layouts (vertex).
func (s *shader) parseSource(raw string) error {
	source, err := s.pp.Process(raw)
	if err != nil {
		return fmt.Errorf("failed to pre-process source: %w", err)
	}
	s.source = source
	s.entryPoint = parseEntryPoint(source, s.shaderType)
	if s.entryPoint == "" {
		return fmt.Errorf("no entry point for shader type %d", s.shaderType)
	}
	switch s.shaderType {
	case ShaderTypeVertex:
		s.vertexLayouts = parseVertexLayouts(source)
	case ShaderTypeCompute:
		s.workGroupSize = parseWorkgroupSize(source)
	}
	s.layouts = parseBindGroupLayouts(source, s.shaderType.Stage())
	return nil
}
