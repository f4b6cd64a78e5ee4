package attachment

// SetBuilderOption is a functional option used to configure a Set during construction.
type SetBuilderOption func(*set)

// WithLabel sets the label prefix of the textures.
func WithLabel(label string) SetBuilderOption {
	return func(s *set) {
		s.label = label
	}
}
