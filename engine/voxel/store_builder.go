package voxel

// StoreBuilderOption is a functional option used to configure a Store during construction.
type StoreBuilderOption func(*storeImpl)

// WithVoxelsPerMeter sets the scale used when loading empty worlds. Snapshots carry their own.
//
// Parameters:
//   - vpm: voxels per metre, greater than zero
//
// Returns:
//   - StoreBuilderOption: a function that sets the scale
func WithVoxelsPerMeter(vpm float32) StoreBuilderOption {
	return func(s *storeImpl) {
		s.voxelsPerMeter = vpm
	}
}

// WithLabel sets the debug label of the world bind group and its buffers.
func WithLabel(label string) StoreBuilderOption {
	return func(s *storeImpl) {
		s.label = label
	}
}

// WithGroup sets the group index recorded on the world layout.
func WithGroup(group int) StoreBuilderOption {
	return func(s *storeImpl) {
		s.group = group
	}
}
