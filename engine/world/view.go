package world

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/attachment"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-voxel/engine/trace"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
)

// viewState is the implementation of the View interface.
type viewState struct {
	mu *sync.Mutex

	id          common.ViewID
	input       ViewInput
	attachments attachment.Set
	trace       trace.View
	output      resource.Texture
}

// View is the state the world keeps for one camera between frames.
type View interface {
	// ID returns the view identity.
	ID() common.ViewID

	// Input returns the view's input of the current frame.
	Input() ViewInput

	// Attachments returns the view's render targets, or nil for views without attachments.
	Attachments() attachment.Set

	// Output returns the colour target the upscaling node received last, or nil.
	Output() resource.Texture

	// SetOutput records the view's final colour target.
	SetOutput(tex resource.Texture)
}

var _ View = &viewState{}

func newViewState(id common.ViewID) *viewState {
	return &viewState{mu: &sync.Mutex{}, id: id}
}

func (v *viewState) ID() common.ViewID {
	return v.id
}

func (v *viewState) Input() ViewInput {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.input
}

func (v *viewState) Attachments() attachment.Set {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attachments
}

func (v *viewState) Output() resource.Texture {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.output
}

func (v *viewState) SetOutput(tex resource.Texture) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.output = tex
}

func (v *viewState) traceView() trace.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.trace
}

// prepare applies this frame's input: it creates or drops the attachments, resizes them to the
// viewport and uploads the trace uniforms.
func (v *viewState) prepare(r renderer.Renderer, in ViewInput, u uniform.TraceUniforms) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.input = in
	v.output = nil

	if !in.HasAttachments {
		v.releaseTargets()
		return nil
	}
	if v.attachments == nil {
		v.attachments = attachment.NewSet(r, attachment.WithLabel(fmt.Sprintf("view %d", v.id)))
	}
	if _, err := v.attachments.Resize(in.Viewport); err != nil {
		return err
	}
	if v.trace == nil {
		tv, err := trace.NewView(r, v.id, v.attachments)
		if err != nil {
			return err
		}
		v.trace = tv
	}
	return v.trace.Update(u)
}

func (v *viewState) releaseTargets() {
	if v.trace != nil {
		v.trace.Release()
		v.trace = nil
	}
	if v.attachments != nil {
		v.attachments.Release()
		v.attachments = nil
	}
}

func (v *viewState) release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseTargets()
	v.output = nil
}
