package physics

// AllocatorBuilderOption is a functional option used to configure an Allocator during construction.
type AllocatorBuilderOption func(*allocatorImpl)

// WithBufferLength sets the initial buffer length in u32 elements.
//
// Parameters:
//   - n: the buffer length, defaults to DefaultBufferLength
//
// Returns:
//   - AllocatorBuilderOption: a function that sets the length
func WithBufferLength(n uint64) AllocatorBuilderOption {
	return func(a *allocatorImpl) {
		a.bufferLength = n
	}
}

// WithLabel sets the debug label prefix of the buffer pair.
func WithLabel(label string) AllocatorBuilderOption {
	return func(a *allocatorImpl) {
		a.label = label
	}
}
