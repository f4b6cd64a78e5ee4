// Package engine runs the frame loop: a fixed-rate tick goroutine for host logic and a render
// goroutine that asks the host for a frame input and hands it to the world.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/profiler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/window"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
)

// ErrNoWorld is returned by Run and RunFrames when the engine was built without a world.
var ErrNoWorld = errors.New("engine: no world")

// FrameSource builds the world input of one frame.
//
// Parameters:
//   - dt: seconds since the previous frame
//   - viewport: the current surface size in physical pixels
//
// Returns:
//   - world.FrameInput: the frame's views, bodies, meshes and animation instructions
type FrameSource func(dt float32, viewport common.Extent2D) world.FrameInput

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window   window.Window
	renderer renderer.Renderer
	world    world.World

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	frameSource    FrameSource

	viewport common.Extent2D
	started  time.Time
	lastErr  error

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for a host application.
// It orchestrates the tick loop, the render loop and the window.
type Engine interface {
	// Window returns the window, or nil for a headless engine.
	Window() window.Window

	// World returns the world the render loop drives.
	World() world.World

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for host logic and input processing.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameSource registers the function that builds each frame's world input.
	SetFrameSource(source FrameSource)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Viewport returns the current surface size.
	Viewport() common.Extent2D

	// Run starts the tick and render loops and blocks until the window closes or Quit is called.
	//
	// Returns:
	//   - error: the frame error that stopped the loop, if any
	Run() error

	// RunFrames renders n frames on the calling goroutine without a tick loop. It is the
	// headless mode.
	//
	// Parameters:
	//   - n: the number of frames
	//
	// Returns:
	//   - error: the first frame error
	RunFrames(n int) error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		viewport:        common.Extent2D{Width: 1280, Height: 720},
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.viewport = e.window.Size()
		e.window.SetResizeCallback(func(size common.Extent2D) {
			e.mu.Lock()
			e.viewport = size
			e.mu.Unlock()
			if e.renderer != nil && !size.IsZero() {
				e.renderer.Resize(int(size.Width), int(size.Height))
			}
		})
	} else if e.renderer != nil {
		if size := e.renderer.SurfaceSize(); !size.IsZero() {
			e.viewport = size
		}
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) World() world.World {
	return e.world
}

func (e *engine) Viewport() common.Extent2D {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

func (e *engine) Run() error {
	if e.world == nil {
		return ErrNoWorld
	}
	e.started = time.Now()
	e.running = true
	e.handle()
	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				_ = e.window.Close()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *engine) RunFrames(n int) error {
	if e.world == nil {
		return ErrNoWorld
	}
	e.started = time.Now()
	last := e.started
	for range n {
		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now
		if err := e.frame(dt); err != nil {
			return err
		}
	}
	return nil
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render goroutine recovered from panic", "panic", r)
			e.setErr(fmt.Errorf("engine: render panic: %v", r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if err := e.frame(dt); err != nil {
				common.Logger().Error("frame failed", "err", err)
				e.setErr(err)
				e.signalQuit()
				return
			}

			if e.renderFrameLimit > 0 {
				if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// frame builds one input, runs it through the world and feeds the profiler.
func (e *engine) frame(dt float32) error {
	var in world.FrameInput
	if e.frameSource != nil {
		in = e.frameSource(dt, e.Viewport())
	}
	in.Delta = dt
	in.Elapsed = float32(time.Since(e.started).Seconds())

	report, err := e.world.Frame(in)
	if err != nil {
		return err
	}
	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Record(report)
		e.profiler.Tick()
	}
	return nil
}

func (e *engine) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		e.lastErr = err
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send; a pending update is replaced.
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameSource(source FrameSource) {
	e.frameSource = source
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
