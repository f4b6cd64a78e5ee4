package graph

import "fmt"

// DefaultGlobalGraph returns the chain run once per frame:
// clear → automata → animation → voxelization → camera driver.
func DefaultGlobalGraph() *Graph {
	return mustBuild(NewBuilder().
		AddNode(PassClear).
		AddNode(PassAutomata).
		AddNode(PassAnimation).
		AddNode(PassVoxelization).
		AddNode(PassCameraDriver).
		AddNodeEdge(PassClear, PassAutomata).
		AddNodeEdge(PassAutomata, PassAnimation).
		AddNodeEdge(PassAnimation, PassVoxelization).
		AddNodeEdge(PassVoxelization, PassCameraDriver))
}

// DefaultViewGraph returns the subgraph the camera driver runs for every active view. The
// attachments node hands its three targets to the trace node, and the colour target then flows
// through the post-processing chain to upscaling.
func DefaultViewGraph() *Graph {
	return mustBuild(NewBuilder().
		AddNode(PassAttachments, SlotNormal, SlotPosition, SlotColor).
		AddNode(PassRebuild).
		AddNode(PassPhysics).
		AddNode(PassTrace, SlotColor).
		AddNode(PassTonemapping, SlotColor).
		AddNode(PassFxaa, SlotColor).
		AddNode(PassUi, SlotColor).
		AddNode(PassUpscaling).
		AddNodeEdge(PassAttachments, PassRebuild).
		AddNodeEdge(PassRebuild, PassPhysics).
		AddNodeEdge(PassPhysics, PassTrace).
		AddSlotEdge(PassAttachments, SlotNormal, PassTrace).
		AddSlotEdge(PassAttachments, SlotPosition, PassTrace).
		AddSlotEdge(PassAttachments, SlotColor, PassTrace).
		AddSlotEdge(PassTrace, SlotColor, PassTonemapping).
		AddSlotEdge(PassTonemapping, SlotColor, PassFxaa).
		AddSlotEdge(PassFxaa, SlotColor, PassUi).
		AddSlotEdge(PassUi, SlotColor, PassUpscaling))
}

func mustBuild(b *Builder) *Graph {
	g, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("graph: default graph: %v", err))
	}
	return g
}
