package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
)

func newHeadless(t *testing.T) (renderer.Renderer, world.World) {
	t.Helper()
	r := renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(2)), renderer.WithSurfaceSize(64, 48))
	t.Cleanup(r.Release)
	w, err := world.NewWorld(r,
		world.WithSource(voxel.EmptySource(16)),
		world.WithPhysicsBufferLength(1024),
		world.WithAnimationBufferLength(256),
	)
	if err != nil {
		t.Fatalf("NewWorld() error = %v", err)
	}
	t.Cleanup(w.Close)
	return r, w
}

func TestRunFramesCallsFrameSource(t *testing.T) {
	r, w := newHeadless(t)
	var viewports []common.Extent2D
	e := NewEngine(WithRenderer(r), WithWorld(w), WithFrameSource(func(dt float32, viewport common.Extent2D) world.FrameInput {
		viewports = append(viewports, viewport)
		return world.FrameInput{}
	}))

	if err := e.RunFrames(3); err != nil {
		t.Fatalf("RunFrames() error = %v", err)
	}
	if len(viewports) != 3 {
		t.Fatalf("frame source calls = %d, want 3", len(viewports))
	}
	want := common.Extent2D{Width: 64, Height: 48}
	if viewports[0] != want {
		t.Errorf("viewport = %v, want %v", viewports[0], want)
	}
	if got := r.Stats().Submissions; got != 3 {
		t.Errorf("Submissions = %d, want 3", got)
	}
}

func TestRunWithoutWorld(t *testing.T) {
	e := NewEngine()
	if err := e.RunFrames(1); !errors.Is(err, ErrNoWorld) {
		t.Errorf("RunFrames() error = %v, want %v", err, ErrNoWorld)
	}
	if err := e.Run(); !errors.Is(err, ErrNoWorld) {
		t.Errorf("Run() error = %v, want %v", err, ErrNoWorld)
	}
}

func TestRunStopsOnQuit(t *testing.T) {
	r, w := newHeadless(t)
	e := NewEngine(WithRenderer(r), WithWorld(w), WithTickRate(200), WithRenderFrameLimit(500))
	e.SetTickCallback(func(float32) { e.Quit() })

	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Quit")
	}
	e.Quit()
}

func TestRunReportsFrameErrors(t *testing.T) {
	r, w := newHeadless(t)
	w.Close()
	e := NewEngine(WithRenderer(r), WithWorld(w))

	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	select {
	case err := <-done:
		if !errors.Is(err, world.ErrClosed) {
			t.Errorf("Run() error = %v, want %v", err, world.ErrClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after a frame error")
	}
}
