package physics

// ReadbackResult is one frame's physics state copied back from the GPU.
type ReadbackResult struct {
	// Frame is the frame whose physics pass produced the data.
	Frame uint64
	// Table is the slot table of that frame.
	Table SlotTable
	// Bodies holds the decoded body of every entity in Table.
	Bodies map[EntityID]Body
	// Err is set when the mirror could not be mapped.
	Err error
}

// Readback is a single-slot channel carrying the most recent mirror transfer from the frame that
// produced it to the frame that consumes it. Publishing replaces an unconsumed result, so a
// consumer only ever sees the latest completed transfer.
type Readback struct {
	ch chan ReadbackResult
}

// NewReadback creates an empty readback channel.
func NewReadback() *Readback {
	return &Readback{ch: make(chan ReadbackResult, 1)}
}

// Publish stores res, dropping any result nobody took.
func (r *Readback) Publish(res ReadbackResult) {
	for {
		select {
		case r.ch <- res:
			return
		default:
		}
		select {
		case <-r.ch:
		default:
		}
	}
}

// Take returns the pending result without blocking.
func (r *Readback) Take() (ReadbackResult, bool) {
	select {
	case res := <-r.ch:
		return res, true
	default:
		return ReadbackResult{}, false
	}
}

// ApplyReadback decodes the bodies of a mirror transfer using the table of the frame that
// produced it. Slots that fall outside data are skipped.
//
// Parameters:
//   - data: the mapped mirror contents, starting at the buffer header
//   - table: the slot table the data was written with
//
// Returns:
//   - map[EntityID]Body: the decoded body per entity
func ApplyReadback(data []byte, table SlotTable) map[EntityID]Body {
	bodies := make(map[EntityID]Body, table.DispatchSize())
	for slot, id := range table.entities {
		offset := SlotOffset(uint32(slot))
		if offset+GPUBodySize > uint64(len(data)) {
			break
		}
		bodies[id] = UnmarshalGPUBody(data[offset:]).Body(id)
	}
	return bodies
}
