package graph

// Settings toggles the seven switchable nodes. A disabled node is a no-op for the frame; its edges
// stay in place so ordering of the remaining nodes is unchanged.
type Settings struct {
	Clear        bool `yaml:"clear" json:"clear"`
	Automata     bool `yaml:"automata" json:"automata"`
	Animation    bool `yaml:"animation" json:"animation"`
	Voxelization bool `yaml:"voxelization" json:"voxelization"`
	Rebuild      bool `yaml:"rebuild" json:"rebuild"`
	Physics      bool `yaml:"physics" json:"physics"`
	Trace        bool `yaml:"trace" json:"trace"`
}

// DefaultSettings enables every node.
func DefaultSettings() Settings {
	return Settings{
		Clear:        true,
		Automata:     true,
		Animation:    true,
		Voxelization: true,
		Rebuild:      true,
		Physics:      true,
		Trace:        true,
	}
}

// Enabled reports whether a node runs under these settings. Nodes without a toggle always run.
//
// Parameters:
//   - kind: the node to check
//
// Returns:
//   - bool: false only when kind has a toggle and it is off
func (s Settings) Enabled(kind PassKind) bool {
	switch kind {
	case PassClear:
		return s.Clear
	case PassAutomata:
		return s.Automata
	case PassAnimation:
		return s.Animation
	case PassVoxelization:
		return s.Voxelization
	case PassRebuild:
		return s.Rebuild
	case PassPhysics:
		return s.Physics
	case PassTrace:
		return s.Trace
	default:
		return true
	}
}

// Set switches the toggle of a node. It reports false for nodes without a toggle.
//
// Parameters:
//   - kind: the node to switch
//   - on: the new state
//
// Returns:
//   - bool: whether kind has a toggle
func (s *Settings) Set(kind PassKind, on bool) bool {
	switch kind {
	case PassClear:
		s.Clear = on
	case PassAutomata:
		s.Automata = on
	case PassAnimation:
		s.Animation = on
	case PassVoxelization:
		s.Voxelization = on
	case PassRebuild:
		s.Rebuild = on
	case PassPhysics:
		s.Physics = on
	case PassTrace:
		s.Trace = on
	default:
		return false
	}
	return true
}
