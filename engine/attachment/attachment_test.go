package attachment

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
)

func TestNewSetStartsAtOnePixel(t *testing.T) {
	r := renderer.NewRenderer(renderer.NewHeadlessBackend())
	t.Cleanup(r.Release)
	s := NewSet(r, WithLabel("view 1"))
	t.Cleanup(s.Release)

	if got := s.Size(); got != (common.Extent2D{Width: 1, Height: 1}) {
		t.Errorf("Size() = %v, want 1x1", got)
	}
	if s.Normal().Format() != NormalFormat || s.Position().Format() != PositionFormat || s.Color().Format() != ColorFormat {
		t.Errorf("formats = %v %v %v", s.Normal().Format(), s.Position().Format(), s.Color().Format())
	}
	if got := s.Normal().Label(); got != "view 1 normal" {
		t.Errorf("Normal().Label() = %q, want %q", got, "view 1 normal")
	}
}

func TestResizeReallocatesOnlyOnChange(t *testing.T) {
	r := renderer.NewRenderer(renderer.NewHeadlessBackend())
	t.Cleanup(r.Release)
	s := NewSet(r)
	t.Cleanup(s.Release)
	base := r.Stats().TextureAllocations

	steps := []struct {
		size        common.Extent2D
		reallocated bool
	}{
		{common.Extent2D{Width: 1280, Height: 720}, true},
		{common.Extent2D{Width: 1280, Height: 720}, false},
		{common.Extent2D{Width: 640, Height: 360}, true},
		{common.Extent2D{Width: 640, Height: 360}, false},
		{common.Extent2D{}, true},
		{common.Extent2D{Width: 1, Height: 1}, false},
	}
	allocations := 1
	for _, step := range steps {
		got, err := s.Resize(step.size)
		if err != nil {
			t.Fatalf("Resize(%v) error = %v", step.size, err)
		}
		if got != step.reallocated {
			t.Errorf("Resize(%v) = %v, want %v", step.size, got, step.reallocated)
		}
		if got {
			allocations++
		}
	}
	if got := s.Allocations(); got != allocations {
		t.Errorf("Allocations() = %d, want %d", got, allocations)
	}
	if got := r.Stats().TextureAllocations - base; got != 3*(allocations-1) {
		t.Errorf("texture allocations = %d, want %d", got, 3*(allocations-1))
	}
}

func TestSlotsFollowResize(t *testing.T) {
	r := renderer.NewRenderer(renderer.NewHeadlessBackend())
	t.Cleanup(r.Release)
	s := NewSet(r)
	t.Cleanup(s.Release)

	if _, err := s.Resize(common.Extent2D{Width: 8, Height: 4}); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	slots := s.Slots()
	if slots[graph.SlotColor] != s.Color() || slots[graph.SlotNormal] != s.Normal() || slots[graph.SlotPosition] != s.Position() {
		t.Errorf("Slots() = %v, want the current textures", slots)
	}
	if w, h := slots[graph.SlotColor].Width(), slots[graph.SlotColor].Height(); w != 8 || h != 4 {
		t.Errorf("color size = %dx%d, want 8x4", w, h)
	}
}
