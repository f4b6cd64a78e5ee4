package shader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
)

const testBodyName AnnotationArg = "test_body"

func init() {
	RegisterInclude(testBodyName, `struct TestBody {
    position: vec3<f32>,
    effect: u32,
    velocity: vec3<f32>,
    _pad: u32,
}`, "TestBody")
	RegisterInclude("test_helpers", `fn double(x: u32) -> u32 { return x * 2u; }`, "")
}

const testComputeSource = `//@oxy:include test_body
//@oxy:include test_helpers
//@oxy:include test_body

struct Header {
    count: u32,
    _pad0: u32,
    _pad1: u32,
    _pad2: u32,
}

//@oxy:group 0 0 storage_read_write bodies array<test_body>
//@oxy:provider 1 0 world uniforms
@group(1) @binding(0) var<uniform> header: Header;
//@oxy:provider 1 1 world voxels
@group(1) @binding(1) var<storage, read_write> voxels: array<atomic<u32>>;
@group(2) @binding(0) var out_color: texture_storage_2d<rgba16float, write>;
@group(2) @binding(1) var<storage, read> lut: array<vec4<f32>, 4>;

@compute @workgroup_size(8, 4)
fn step(@builtin(global_invocation_id) id: vec3<u32>) {
    let n = double(header.count);
}
`

func TestNewShaderCompute(t *testing.T) {
	s, err := NewShader("step", ShaderTypeCompute, testComputeSource)
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	if s.EntryPoint() != "step" {
		t.Errorf("EntryPoint() = %q, want %q", s.EntryPoint(), "step")
	}
	if got := s.WorkgroupSize(); got != [3]uint32{8, 4, 1} {
		t.Errorf("WorkgroupSize() = %v, want [8 4 1]", got)
	}
	if n := strings.Count(s.Source(), "struct TestBody"); n != 1 {
		t.Errorf("TestBody injected %d times, want 1", n)
	}
	if !strings.Contains(s.Source(), "@group(0) @binding(0) var<storage, read_write> bodies: array<TestBody>;") {
		t.Errorf("generated declaration missing from source:\n%s", s.Source())
	}

	g0, ok := s.BindGroupLayout(0)
	if !ok || len(g0.Entries) != 1 {
		t.Fatalf("BindGroupLayout(0) = %+v, %v", g0, ok)
	}
	if e := g0.Entries[0]; e.Kind != BindingKindStorage || e.MinBindingSize != 32 || !e.RuntimeSized || e.Visibility != StageCompute {
		t.Errorf("bodies entry = %+v, want storage, 32 bytes, runtime sized, compute", e)
	}

	g1, _ := s.BindGroupLayout(1)
	tests := []struct {
		binding int
		kind    BindingKind
		size    uint64
		runtime bool
	}{
		{0, BindingKindUniform, 16, false},
		{1, BindingKindStorage, 4, true},
	}
	for _, tt := range tests {
		e, ok := g1.Entry(tt.binding)
		if !ok {
			t.Fatalf("group 1 binding %d missing", tt.binding)
		}
		if e.Kind != tt.kind || e.MinBindingSize != tt.size || e.RuntimeSized != tt.runtime {
			t.Errorf("group 1 binding %d = %+v, want kind %v size %d runtime %v", tt.binding, e, tt.kind, tt.size, tt.runtime)
		}
	}

	g2, _ := s.BindGroupLayout(2)
	tex, _ := g2.Entry(0)
	if tex.Kind != BindingKindStorageTexture || tex.Format != resource.TextureFormatRGBA16Float || tex.Access != StorageAccessWriteOnly {
		t.Errorf("out_color entry = %+v", tex)
	}
	lut, _ := g2.Entry(1)
	if lut.Kind != BindingKindReadOnlyStorage || lut.MinBindingSize != 64 || lut.RuntimeSized {
		t.Errorf("lut entry = %+v, want read-only 64 bytes fixed", lut)
	}

	if b, ok := s.BindGroupFromVarName(1, "voxels"); !ok || b != 1 {
		t.Errorf("BindGroupFromVarName(1, voxels) = %d, %v", b, ok)
	}
	if g, b, ok := s.ProviderBinding(AnnotationArgWorld, AnnotationArgRoleVoxels); !ok || g != 1 || b != 1 {
		t.Errorf("ProviderBinding(world, voxels) = %d, %d, %v", g, b, ok)
	}
	if _, _, ok := s.ProviderBinding(AnnotationArgWorld, AnnotationArgRoleBricks); ok {
		t.Error("ProviderBinding(world, bricks) found a binding that does not exist")
	}
	if g, ok := s.ProviderGroup(AnnotationArgWorld); !ok || g != 1 {
		t.Errorf("ProviderGroup(world) = %d, %v", g, ok)
	}
}

func TestNewShaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unknown include", "//@oxy:include nope\n@compute @workgroup_size(1) fn main() {}"},
		{"unknown provider", "//@oxy:provider 0 0 lights\n@compute @workgroup_size(1) fn main() {}"},
		{"unknown role", "//@oxy:provider 0 0 world lights\n@compute @workgroup_size(1) fn main() {}"},
		{"bad group", "//@oxy:group x 0 storage_uniform u test_body\n@compute @workgroup_size(1) fn main() {}"},
		{"helper as type", "//@oxy:group 0 0 storage_uniform u test_helpers\n@compute @workgroup_size(1) fn main() {}"},
		{"empty", "//@oxy:\n@compute @workgroup_size(1) fn main() {}"},
		{"no entry point", "fn main() {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewShader(tt.name, ShaderTypeCompute, tt.source); err == nil {
				t.Error("NewShader() error = nil, want error")
			}
		})
	}
}

func TestVertexLayouts(t *testing.T) {
	src := `struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
}
struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
}
@group(0) @binding(0) var<uniform> camera: mat4x4<f32>;
@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    return out;
}
@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`
	vs, err := NewShader("vs", ShaderTypeVertex, src)
	if err != nil {
		t.Fatalf("NewShader(vertex) error = %v", err)
	}
	layouts := vs.VertexLayouts()
	if len(layouts) != 1 {
		t.Fatalf("len(VertexLayouts()) = %d, want 1", len(layouts))
	}
	if layouts[0].Stride != 20 {
		t.Errorf("Stride = %d, want 20", layouts[0].Stride)
	}
	want := []VertexAttribute{{0, VertexFormatFloat32x3, 0}, {1, VertexFormatFloat32x2, 12}}
	for i, a := range layouts[0].Attributes {
		if a != want[i] {
			t.Errorf("Attributes[%d] = %+v, want %+v", i, a, want[i])
		}
	}
	if vs.WorkgroupSize() != [3]uint32{} {
		t.Errorf("WorkgroupSize() = %v, want zero for vertex shaders", vs.WorkgroupSize())
	}

	fs, err := NewShader("fs", ShaderTypeFragment, src)
	if err != nil {
		t.Fatalf("NewShader(fragment) error = %v", err)
	}
	if fs.EntryPoint() != "fs_main" {
		t.Errorf("EntryPoint() = %q, want fs_main", fs.EntryPoint())
	}
	vl, _ := vs.BindGroupLayout(0)
	fl, _ := fs.BindGroupLayout(0)
	merged := vl.Merge(fl)
	if e, _ := merged.Entry(0); e.Visibility != StageVertex|StageFragment || e.MinBindingSize != 64 {
		t.Errorf("merged entry = %+v, want vertex|fragment, 64 bytes", e)
	}
}

func TestComputeStructSizes(t *testing.T) {
	src := `struct Outer { inner: Inner, scale: f32, }
struct Inner { a: vec3<f32>, b: u32, }
struct Tail { count: u32, items: array<vec4<f32>>, }
struct Matrices { camera: mat4x4<f32>, flags: vec4<u32>, }`
	sizes := computeStructSizes(parseStructBlocks(src))
	tests := []struct {
		name    string
		size    uint64
		runtime bool
	}{
		{"Inner", 16, false},
		{"Outer", 32, false},
		{"Tail", 16, true},
		{"Matrices", 80, false},
	}
	for _, tt := range tests {
		l, ok := sizes.known[tt.name]
		if !ok {
			t.Errorf("struct %s not resolved", tt.name)
			continue
		}
		if l.size != tt.size || sizes.runtime[tt.name] != tt.runtime {
			t.Errorf("%s = size %d runtime %v, want size %d runtime %v", tt.name, l.size, sizes.runtime[tt.name], tt.size, tt.runtime)
		}
	}
}

func TestStripComments(t *testing.T) {
	src := "a /* b /* nested */ c */ d // tail\ne"
	got := strings.Fields(stripComments(src))
	want := []string{"a", "d", "e"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("stripComments() fields = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	ok, err := NewShader("ok", ShaderTypeCompute, "@compute @workgroup_size(1)\nfn main() {}\n")
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	bad, err := NewShader("bad", ShaderTypeCompute, "@compute @workgroup_size(1)\nfn main() { let x: u32 = ; }\n")
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() error = nil, want a compile error")
	}
}

func TestRegisterIncludeTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterInclude() did not panic on a duplicate name")
		}
	}()
	RegisterInclude(testBodyName, "", "")
}

func TestNewShaderFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.wgsl")
	src := "@group(0) @binding(0) var<storage, read_write> data: array<u32>;\n" +
		"@compute @workgroup_size(64)\nfn main(@builtin(global_invocation_id) id: vec3<u32>) { data[id.x] = 1u; }\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := NewShaderFromPath("fill", ShaderTypeCompute, path)
	if err != nil {
		t.Fatalf("NewShaderFromPath() error = %v", err)
	}
	if got := s.EntryPoint(); got != "main" {
		t.Errorf("EntryPoint() = %q, want main", got)
	}

	if _, err := NewShaderFromPath("missing", ShaderTypeCompute, filepath.Join(t.TempDir(), "nope.wgsl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("NewShaderFromPath(missing) error = %v, want os.ErrNotExist", err)
	}
}
