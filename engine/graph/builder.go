package graph

import (
	"fmt"
	"slices"
)

type node struct {
	kind    PassKind
	outputs []SlotName
}

type nodeEdge struct {
	from, to PassKind
}

type slotEdge struct {
	from PassKind
	slot SlotName
	to   PassKind
}

// Builder collects nodes and edges and validates them in Build. Errors are deferred to Build so
// calls can be chained.
type Builder struct {
	nodes     []node
	index     map[PassKind]int
	edges     []nodeEdge
	slotEdges []slotEdge
	err       error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[PassKind]int)}
}

// AddNode adds a node declaring the slots it produces. Nodes are ordered by insertion when the
// edges leave a choice.
//
// Parameters:
//   - kind: the node to add
//   - outputs: the slots the node produces
//
// Returns:
//   - *Builder: the builder, for chaining
func (b *Builder) AddNode(kind PassKind, outputs ...SlotName) *Builder {
	if _, ok := b.index[kind]; ok {
		b.fail(fmt.Errorf("%w: %s", ErrDuplicateNode, kind))
		return b
	}
	b.index[kind] = len(b.nodes)
	b.nodes = append(b.nodes, node{kind: kind, outputs: outputs})
	return b
}

// AddNodeEdge orders from before to without passing a resource.
func (b *Builder) AddNodeEdge(from, to PassKind) *Builder {
	b.edges = append(b.edges, nodeEdge{from: from, to: to})
	return b
}

// AddSlotEdge orders from before to and hands from's output slot to to's input of the same name.
//
// Parameters:
//   - from: the producing node, which must declare slot as an output
//   - slot: the slot to pass
//   - to: the consuming node
//
// Returns:
//   - *Builder: the builder, for chaining
func (b *Builder) AddSlotEdge(from PassKind, slot SlotName, to PassKind) *Builder {
	b.slotEdges = append(b.slotEdges, slotEdge{from: from, slot: slot, to: to})
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the graph and computes its execution order with Kahn's algorithm. Among nodes
// that are ready at the same time the one added first runs first.
//
// Returns:
//   - *Graph: the validated graph
//   - error: ErrDuplicateNode, ErrUnknownNode, ErrSlotMismatch or ErrCycle
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	n := len(b.nodes)
	successors := make([][]int, n)
	indegree := make([]int, n)
	link := func(from, to PassKind) error {
		fi, ok := b.index[from]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, from)
		}
		ti, ok := b.index[to]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, to)
		}
		successors[fi] = append(successors[fi], ti)
		indegree[ti]++
		return nil
	}

	for _, e := range b.edges {
		if err := link(e.from, e.to); err != nil {
			return nil, err
		}
	}

	inputs := make(map[PassKind][]slotEdge)
	for _, e := range b.slotEdges {
		if err := link(e.from, e.to); err != nil {
			return nil, err
		}
		if !slices.Contains(b.nodes[b.index[e.from]].outputs, e.slot) {
			return nil, fmt.Errorf("%w: %s does not produce %q", ErrSlotMismatch, e.from, e.slot)
		}
		for _, existing := range inputs[e.to] {
			if existing.slot == e.slot {
				return nil, fmt.Errorf("%w: %s receives %q from both %s and %s", ErrSlotMismatch, e.to, e.slot, existing.from, e.from)
			}
		}
		inputs[e.to] = append(inputs[e.to], e)
	}

	order := make([]PassKind, 0, n)
	done := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := range n {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i := range n {
				if !done[i] {
					stuck = append(stuck, b.nodes[i].kind.String())
				}
			}
			return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
		}
		done[next] = true
		order = append(order, b.nodes[next].kind)
		for _, s := range successors[next] {
			indegree[s]--
		}
	}

	return &Graph{order: order, inputs: inputs}, nil
}
