package trace

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-voxel/engine/attachment"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
)

//go:embed assets/trace.wgsl
var traceSource string

// Bind group indices of the trace pipeline.
const (
	GroupWorld = 0
	GroupView  = 1
)

// Bindings of the per-view trace group.
const (
	BindingUniforms = 0
	BindingNormal   = 1
	BindingPosition = 2
	BindingColor    = 3
)

// ViewLayout returns the per-view group layout: the trace uniforms and the three attachments as
// write-only storage textures.
func ViewLayout(group int) shader.BindGroupLayout {
	storage := func(binding int, name string, format shader.BindingLayout) shader.BindingLayout {
		format.Binding, format.Name = binding, name
		format.Kind = shader.BindingKindStorageTexture
		format.Visibility = shader.StageCompute
		format.Access = shader.StorageAccessWriteOnly
		return format
	}
	return shader.BindGroupLayout{Group: group, Entries: []shader.BindingLayout{
		{Binding: BindingUniforms, Name: "trace", Kind: shader.BindingKindUniform, Visibility: shader.StageCompute, MinBindingSize: uniform.TraceUniformsSize},
		storage(BindingNormal, "normal_target", shader.BindingLayout{Format: attachment.NormalFormat}),
		storage(BindingPosition, "position_target", shader.BindingLayout{Format: attachment.PositionFormat}),
		storage(BindingColor, "color_target", shader.BindingLayout{Format: attachment.ColorFormat}),
	}}
}
