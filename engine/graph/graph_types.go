package graph

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
)

var (
	// ErrCycle is returned by Build when the node edges do not form a DAG.
	ErrCycle = errors.New("graph: cycle")
	// ErrUnknownNode is returned by Build when an edge names a node that was never added.
	ErrUnknownNode = errors.New("graph: unknown node")
	// ErrDuplicateNode is returned by Build when a node kind is added twice.
	ErrDuplicateNode = errors.New("graph: duplicate node")
	// ErrSlotMismatch is returned by Build when a slot edge names an output its producer does not
	// declare, or when two edges feed the same input slot of one consumer.
	ErrSlotMismatch = errors.New("graph: slot mismatch")
	// ErrSkipNode is returned by a Runner when a node's resources are not available. The node is
	// recorded as skipped and the rest of the graph continues.
	ErrSkipNode = errors.New("graph: skip node")
)

// PassKind identifies a node of the render graph.
type PassKind int

const (
	PassClear PassKind = iota
	PassAutomata
	PassAnimation
	PassVoxelization
	PassCameraDriver
	PassAttachments
	PassRebuild
	PassPhysics
	PassTrace
	PassTonemapping
	PassFxaa
	PassUi
	PassUpscaling
)

var passKindNames = [...]string{
	PassClear:        "clear",
	PassAutomata:     "automata",
	PassAnimation:    "animation",
	PassVoxelization: "voxelization",
	PassCameraDriver: "camera_driver",
	PassAttachments:  "attachments",
	PassRebuild:      "rebuild",
	PassPhysics:      "physics",
	PassTrace:        "trace",
	PassTonemapping:  "tonemapping",
	PassFxaa:         "fxaa",
	PassUi:           "ui",
	PassUpscaling:    "upscaling",
}

func (k PassKind) String() string {
	if k >= 0 && int(k) < len(passKindNames) {
		return passKindNames[k]
	}
	return fmt.Sprintf("pass(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k PassKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind encoded by MarshalText.
func (k *PassKind) UnmarshalText(b []byte) error {
	parsed, ok := ParsePassKind(string(b))
	if !ok {
		return fmt.Errorf("graph: unknown pass %q", b)
	}
	*k = parsed
	return nil
}

// ParsePassKind is the inverse of PassKind.String.
func ParsePassKind(s string) (PassKind, bool) {
	for i, name := range passKindNames {
		if name == s {
			return PassKind(i), true
		}
	}
	return 0, false
}

// SlotName names a resource handed from one node to another.
type SlotName string

const (
	SlotNormal   SlotName = "normal"
	SlotPosition SlotName = "position"
	SlotColor    SlotName = "color"
)

// Slots carries the textures a node produced or consumes, keyed by slot.
type Slots map[SlotName]resource.Texture

// Status is the outcome of one node in one run.
type Status int

const (
	// StatusRan means the runner returned without error.
	StatusRan Status = iota
	// StatusDisabled means the node's setting was off. The runner was not called.
	StatusDisabled
	// StatusSkipped means the runner returned ErrSkipNode.
	StatusSkipped
	// StatusFailed means the runner returned any other error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRan:
		return "ran"
	case StatusDisabled:
		return "disabled"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status encoded by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for _, candidate := range []Status{StatusRan, StatusDisabled, StatusSkipped, StatusFailed} {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("graph: unknown status %q", b)
}
