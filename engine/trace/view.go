package trace

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/attachment"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/uniform"
)

// view is the implementation of the View interface.
type view struct {
	mu *sync.Mutex

	id          common.ViewID
	renderer    renderer.Renderer
	attachments attachment.Set
	provider    bind_group_provider.BindGroupProvider

	// bound is the attachment allocation count the bind group was last built against.
	bound int
}

// View is one camera's trace bind group: its uniforms and its attachments.
type View interface {
	// ID returns the view identity.
	ID() common.ViewID

	// Attachments returns the view's attachment set.
	Attachments() attachment.Set

	// Provider returns the trace bind group.
	Provider() bind_group_provider.BindGroupProvider

	// Update uploads the view's uniforms and rebinds the attachments if they were reallocated
	// since the last update.
	//
	// Parameters:
	//   - u: the trace uniforms of this frame
	//
	// Returns:
	//   - error: if the upload or the rebind fails
	Update(u uniform.TraceUniforms) error

	// Release frees the uniforms. The attachments belong to the caller.
	Release()
}

var _ View = &view{}

// NewView creates the trace bind group of a view.
//
// Parameters:
//   - r: the renderer that owns the uniforms
//   - id: the view identity
//   - attachments: the view's attachment set
//
// Returns:
//   - View: the new view
//   - error: if the bind group cannot be created
func NewView(r renderer.Renderer, id common.ViewID, attachments attachment.Set) (View, error) {
	p := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("trace view %d", id),
		bind_group_provider.WithSharedTexture(BindingNormal, attachments.Normal()),
		bind_group_provider.WithSharedTexture(BindingPosition, attachments.Position()),
		bind_group_provider.WithSharedTexture(BindingColor, attachments.Color()),
	)
	if err := r.InitBindGroup(p, ViewLayout(GroupView), nil, nil); err != nil {
		p.Release()
		return nil, fmt.Errorf("trace: view %d: %w", id, err)
	}
	return &view{
		mu:          &sync.Mutex{},
		id:          id,
		renderer:    r,
		attachments: attachments,
		provider:    p,
		bound:       attachments.Allocations(),
	}, nil
}

func (v *view) ID() common.ViewID {
	return v.id
}

func (v *view) Attachments() attachment.Set {
	return v.attachments
}

func (v *view) Provider() bind_group_provider.BindGroupProvider {
	return v.provider
}

func (v *view) Update(u uniform.TraceUniforms) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n := v.attachments.Allocations(); n != v.bound {
		v.provider.ShareTexture(BindingNormal, v.attachments.Normal())
		v.provider.ShareTexture(BindingPosition, v.attachments.Position())
		v.provider.ShareTexture(BindingColor, v.attachments.Color())
		if err := v.renderer.RebindGroup(v.provider); err != nil {
			return fmt.Errorf("trace: view %d: %w", v.id, err)
		}
		v.bound = n
	}
	return v.renderer.WriteBuffer(v.provider.Buffer(BindingUniforms), 0, u.Marshal())
}

func (v *view) Release() {
	v.provider.Release()
}
