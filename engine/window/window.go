package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

// Window provides platform windowing and input event handling.
// Wraps platform-specific window implementations with a common interface.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new physical size in pixels
	SetResizeCallback(callback func(size common.Extent2D))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the callback for key events.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it is held
	SetKeyCallback(callback func(keyCode uint32, down bool))

	// SetMouseButtonCallback sets the callback for mouse button events.
	//
	// Parameters:
	//   - callback: function receiving the button, its state and the cursor position
	SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y int32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	SetMouseMoveCallback(callback func(x, y int32))

	// MouseDown reports whether a mouse button is currently held.
	MouseDown(button MouseButton) bool

	// KeyDown reports whether a key is currently held.
	KeyDown(keyCode uint32) bool

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if the window is
	//     not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	IsRunning() bool

	// Close closes the window and releases platform resources.
	Close() error

	// ProcessMessages runs the window message loop.
	// Blocks until the window is closed. Calls the update callback each iteration.
	ProcessMessages()

	// Size returns the physical framebuffer size in pixels, which differs from the window size on
	// high-DPI displays.
	Size() common.Extent2D
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu *sync.Mutex

	title string

	// size limits applied to the platform window
	maxWidth, maxHeight int
	minWidth, minHeight int

	// width and height hold the physical framebuffer size once the window exists.
	width  int
	height int

	buttons [3]bool
	keys    map[uint32]bool

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	onUpdate      func()
	onResize      func(size common.Extent2D)
	onScroll      func(delta float32)
	onKey         func(keyCode uint32, down bool)
	onMouseButton func(button MouseButton, down bool, x, y int32)
	onMouseMove   func(x, y int32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: if the platform window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		title:     "oxy-voxel",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		keys:      make(map[uint32]bool),
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(size common.Extent2D)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, down bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y int32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) MouseDown(button MouseButton) bool {
	if button < 0 || int(button) >= len(w.buttons) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buttons[button]
}

func (w *engineWindow) KeyDown(keyCode uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[keyCode]
}

// setButton records a button state and forwards it to the callback.
func (w *engineWindow) setButton(button MouseButton, down bool, x, y int32) {
	w.mu.Lock()
	w.buttons[button] = down
	w.mu.Unlock()
	if w.onMouseButton != nil {
		w.onMouseButton(button, down, x, y)
	}
}

func (w *engineWindow) setKey(keyCode uint32, down bool) {
	w.mu.Lock()
	w.keys[keyCode] = down
	w.mu.Unlock()
	if w.onKey != nil {
		w.onKey(keyCode, down)
	}
}

func (w *engineWindow) setSize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()
	if w.onResize != nil {
		w.onResize(common.Extent2D{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))})
	}
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if ok := platformProcessMessages(w); !ok {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() common.Extent2D {
	w.mu.Lock()
	defer w.mu.Unlock()
	return common.Extent2D{Width: uint32(max(w.width, 0)), Height: uint32(max(w.height, 0))}
}
