package compute

// ResourcesBuilderOption is a functional option used to configure Resources during construction.
type ResourcesBuilderOption func(*resourcesImpl)

// WithAnimationLength sets the animation buffer length in u32 elements.
//
// Parameters:
//   - n: the buffer length, defaults to DefaultAnimationLength
//
// Returns:
//   - ResourcesBuilderOption: a function that sets the length
func WithAnimationLength(n uint64) ResourcesBuilderOption {
	return func(res *resourcesImpl) {
		res.animationLength = n
	}
}

// WithLabel sets the debug label of the compute bind group.
func WithLabel(label string) ResourcesBuilderOption {
	return func(res *resourcesImpl) {
		res.label = label
	}
}
