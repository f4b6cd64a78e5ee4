package window

import "github.com/Carmen-Shannon/oxy-voxel/common"

// WindowBuilderOption is a functional option for configuring an engineWindow.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the requested window size in screen coordinates. Size reports the physical
// framebuffer size once the window exists.
//
// Parameters:
//   - size: the initial size
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(size common.Extent2D) WindowBuilderOption {
	return func(w *engineWindow) {
		if size.Width > 0 && size.Height > 0 {
			w.width, w.height = int(size.Width), int(size.Height)
		}
	}
}

// WithSizeLimits bounds interactive resizing.
//
// Parameters:
//   - minSize: the smallest allowed size
//   - maxSize: the largest allowed size
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSizeLimits(minSize, maxSize common.Extent2D) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth, w.minHeight = int(minSize.Width), int(minSize.Height)
		w.maxWidth, w.maxHeight = int(maxSize.Width), int(maxSize.Height)
	}
}
