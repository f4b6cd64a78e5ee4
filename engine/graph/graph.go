// Package graph schedules the frame's passes. A Graph is a validated DAG of PassKind nodes with
// node edges (ordering only) and slot edges (ordering plus a texture hand-off). Run walks it in
// topological order and records what every node did.
package graph

import (
	"errors"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
)

// Graph is an immutable, validated render graph.
type Graph struct {
	order  []PassKind
	inputs map[PassKind][]slotEdge
}

// Order returns the execution order.
func (g *Graph) Order() []PassKind {
	return append([]PassKind(nil), g.order...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Context is what a node sees when it runs.
type Context struct {
	// Settings are the frame's node toggles.
	Settings Settings
	// Frame is the frame number.
	Frame uint64
	// View is the view this subgraph instance belongs to. It is zero for the global graph.
	View common.ViewID
	// Kind is the node being run.
	Kind PassKind
	// Inputs holds the slots delivered by producers that ran. A producer that was disabled or
	// skipped leaves its slots absent.
	Inputs Slots
}

// Runner executes one node. It returns the node's outputs; only slots the node declared are
// forwarded. Returning ErrSkipNode (possibly wrapped) marks the node skipped.
type Runner func(ctx Context) (Slots, error)

// NodeReport records the outcome of one node.
type NodeReport struct {
	Kind     PassKind      `json:"kind"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report records one run of a graph, in execution order.
type Report struct {
	View  common.ViewID `json:"view"`
	Nodes []NodeReport  `json:"nodes"`
}

// Status returns the status of a node.
//
// Parameters:
//   - kind: the node to look up
//
// Returns:
//   - Status: the node's status
//   - bool: false if the node is not in the report
func (r Report) Status(kind PassKind) (Status, bool) {
	for _, n := range r.Nodes {
		if n.Kind == kind {
			return n.Status, true
		}
	}
	return 0, false
}

// Count returns the number of nodes with the given status.
func (r Report) Count(status Status) int {
	count := 0
	for _, n := range r.Nodes {
		if n.Status == status {
			count++
		}
	}
	return count
}

// Run executes every node of g in order. Disabled nodes are recorded without calling run. Errors
// never stop the walk: a skipped or failed node only loses its outputs, and consumers see the
// missing slots and decide for themselves.
//
// Parameters:
//   - g: the graph to run
//   - ctx: the frame context; Kind and Inputs are filled per node
//   - run: the node runner
//
// Returns:
//   - Report: one entry per node in execution order
func Run(g *Graph, ctx Context, run Runner) Report {
	report := Report{View: ctx.View, Nodes: make([]NodeReport, 0, len(g.order))}
	produced := make(map[PassKind]Slots, len(g.order))

	for _, kind := range g.order {
		entry := NodeReport{Kind: kind}
		if !ctx.Settings.Enabled(kind) {
			entry.Status = StatusDisabled
			report.Nodes = append(report.Nodes, entry)
			continue
		}

		nodeCtx := ctx
		nodeCtx.Kind = kind
		nodeCtx.Inputs = make(Slots)
		for _, e := range g.inputs[kind] {
			if tex, ok := produced[e.from][e.slot]; ok && tex != nil {
				nodeCtx.Inputs[e.slot] = tex
			}
		}

		start := time.Now()
		outputs, err := run(nodeCtx)
		entry.Duration = time.Since(start)

		switch {
		case err == nil:
			entry.Status = StatusRan
			produced[kind] = outputs
		case errors.Is(err, ErrSkipNode):
			entry.Status = StatusSkipped
			entry.Error = err.Error()
			common.Logger().Debug("graph node skipped", "node", kind, "view", ctx.View, "frame", ctx.Frame, "reason", err)
		default:
			entry.Status = StatusFailed
			entry.Error = err.Error()
			common.Logger().Warn("graph node failed", "node", kind, "view", ctx.View, "frame", ctx.Frame, "err", err)
		}
		report.Nodes = append(report.Nodes, entry)
	}
	return report
}
