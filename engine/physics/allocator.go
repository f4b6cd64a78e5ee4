package physics

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/resource"
)

// Allocation is the result of one Prepare call.
type Allocation struct {
	// Frame counts Prepare calls, starting at 1.
	Frame uint64
	// DispatchSize is the number of occupied slots, the invocation count of the physics pass.
	DispatchSize uint32
	// Excluded lists the entities left out because the buffer is full.
	Excluded []EntityID
	// Table is the slot table written this frame.
	Table SlotTable
}

// allocatorImpl is the implementation of the Allocator interface.
type allocatorImpl struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	label    string

	bufferLength uint64
	gpu          resource.Buffer
	mirror       resource.Buffer
	// mirrorGeneration advances whenever the buffers are recreated so callbacks for a released
	// mirror can be recognised.
	mirrorGeneration uint64

	table SlotTable
	frame uint64

	readback *Readback

	copyPending bool
	copySize    uint64
	copyTable   SlotTable
	copyFrame   uint64
	mapInFlight bool
}

// Allocator maps the physics-active entities of each frame onto dense slots of a fixed-size GPU
// buffer and carries the simulated state back to the host one frame later.
//
// Per frame, on the render goroutine:
//  1. Prepare rebuilds the slot table and uploads header and bodies
//  2. the physics pass runs over DispatchSize slots
//  3. RecordCopy copies the used part of the buffer into the CPU mirror
//  4. ScheduleReadback maps the mirror once the frame was submitted
//  5. on a later frame, after Renderer.Poll, TakeReadback returns the decoded bodies
type Allocator interface {
	// Buffer returns the GPU physics buffer bound by the compute passes.
	Buffer() resource.Buffer

	// Mirror returns the CPU-readable mirror buffer.
	Mirror() resource.Buffer

	// BufferLength returns the buffer length in u32 elements.
	BufferLength() uint64

	// Capacity returns the number of slots the buffer holds.
	Capacity() uint32

	// SetCapacity resizes the buffer pair. Nothing is reallocated when the length is unchanged.
	//
	// Parameters:
	//   - bufferLength: the new length in u32 elements, at least HeaderWords
	//
	// Returns:
	//   - bool: true if the buffers were recreated
	//   - error: if the length is too small or allocation fails
	SetCapacity(bufferLength uint64) (bool, error)

	// Prepare rebuilds the slot table from this frame's bodies and stages the header and every
	// slot into the GPU buffer. Bodies beyond capacity are excluded and logged.
	//
	// Parameters:
	//   - bodies: the physics-active entities this frame
	//
	// Returns:
	//   - Allocation: the dispatch size, exclusions and table of this frame
	//   - error: if the buffer write fails
	Prepare(bodies []Body) (Allocation, error)

	// Table returns the current slot table.
	Table() SlotTable

	// RecordCopy records the GPU to mirror copy inside the current compute frame. It records
	// nothing while the previous transfer is still mapped.
	//
	// Returns:
	//   - bool: true if a copy was recorded
	//   - error: if recording fails
	RecordCopy() (bool, error)

	// ScheduleReadback maps the mirror for the copy recorded this frame. Call it after the compute
	// frame was submitted. The result is published on the next Renderer.Poll.
	ScheduleReadback()

	// TakeReadback returns the latest completed transfer, if any.
	TakeReadback() (ReadbackResult, bool)

	// Release frees the buffer pair.
	Release()
}

var _ Allocator = &allocatorImpl{}

// NewAllocator creates the buffer pair. It panics if the buffers cannot be created.
//
// Parameters:
//   - r: the renderer that owns the buffers
//   - options: functional options to configure the allocator
//
// Returns:
//   - Allocator: the new allocator
func NewAllocator(r renderer.Renderer, options ...AllocatorBuilderOption) Allocator {
	a := &allocatorImpl{
		mu:           &sync.Mutex{},
		renderer:     r,
		label:        "physics",
		bufferLength: DefaultBufferLength,
		readback:     NewReadback(),
	}
	for _, opt := range options {
		opt(a)
	}
	if err := a.createBuffers(a.bufferLength); err != nil {
		panic(fmt.Sprintf("physics: create buffers: %v", err))
	}
	return a
}

func (a *allocatorImpl) createBuffers(bufferLength uint64) error {
	if bufferLength < HeaderWords {
		return fmt.Errorf("physics: buffer length %d below header size %d", bufferLength, HeaderWords)
	}
	gpu, err := a.renderer.CreateBuffer(a.label+"/gpu", bufferLength*4,
		resource.BufferUsageStorage|resource.BufferUsageCopyDst|resource.BufferUsageCopySrc)
	if err != nil {
		return err
	}
	mirror, err := a.renderer.CreateBuffer(a.label+"/mirror", bufferLength*4,
		resource.BufferUsageCopyDst|resource.BufferUsageMapRead)
	if err != nil {
		gpu.Release()
		return err
	}
	if a.gpu != nil {
		a.gpu.Release()
	}
	if a.mirror != nil {
		a.mirror.Release()
	}
	a.gpu, a.mirror = gpu, mirror
	a.bufferLength = bufferLength
	a.mirrorGeneration++
	a.copyPending = false
	a.mapInFlight = false
	return nil
}

func (a *allocatorImpl) Buffer() resource.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gpu
}

func (a *allocatorImpl) Mirror() resource.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mirror
}

func (a *allocatorImpl) BufferLength() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferLength
}

func (a *allocatorImpl) Capacity() uint32 {
	return SlotCapacity(a.BufferLength())
}

func (a *allocatorImpl) SetCapacity(bufferLength uint64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if bufferLength == a.bufferLength {
		return false, nil
	}
	if err := a.createBuffers(bufferLength); err != nil {
		return false, err
	}
	common.Logger().Info("physics buffers resized", "buffer_length", bufferLength, "slots", SlotCapacity(bufferLength))
	return true, nil
}

func (a *allocatorImpl) Prepare(bodies []Body) (Allocation, error) {
	ids := make([]EntityID, len(bodies))
	byID := make(map[EntityID]Body, len(bodies))
	for i, b := range bodies {
		ids[i] = b.ID
		byID[b.ID] = b
	}

	a.mu.Lock()
	a.frame++
	table := Rebuild(a.table, ids, a.bufferLength)
	a.table = table
	frame := a.frame
	gpu := a.gpu
	a.mu.Unlock()

	data := make([]byte, 0, SlotOffset(table.DispatchSize()))
	data = append(data, header(table.DispatchSize())...)
	for _, id := range table.entities {
		data = append(data, NewGPUBody(byID[id]).Marshal()...)
	}
	if err := a.renderer.WriteBuffer(gpu, 0, data); err != nil {
		return Allocation{}, fmt.Errorf("physics: stage bodies: %w", err)
	}

	if n := len(table.excluded); n > 0 {
		common.Logger().Warn("physics buffer full", "frame", frame, "capacity", SlotCapacity(table.bufferLength), "excluded", n)
	}
	return Allocation{
		Frame:        frame,
		DispatchSize: table.DispatchSize(),
		Excluded:     table.Excluded(),
		Table:        table,
	}, nil
}

func (a *allocatorImpl) Table() SlotTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table
}

func (a *allocatorImpl) RecordCopy() (bool, error) {
	a.mu.Lock()
	if a.mapInFlight {
		frame := a.frame
		a.mu.Unlock()
		common.Logger().Debug("physics readback still mapped, copy skipped", "frame", frame)
		return false, nil
	}
	size := SlotOffset(a.table.DispatchSize())
	gpu, mirror := a.gpu, a.mirror
	a.mu.Unlock()

	if err := a.renderer.CopyBufferToBuffer(gpu, mirror, size); err != nil {
		return false, fmt.Errorf("physics: copy to mirror: %w", err)
	}

	a.mu.Lock()
	a.copyPending = true
	a.copySize = size
	a.copyTable = a.table
	a.copyFrame = a.frame
	a.mu.Unlock()
	return true, nil
}

func (a *allocatorImpl) ScheduleReadback() {
	a.mu.Lock()
	if !a.copyPending {
		a.mu.Unlock()
		return
	}
	a.copyPending = false
	a.mapInFlight = true
	mirror, size := a.mirror, a.copySize
	table, frame, generation := a.copyTable, a.copyFrame, a.mirrorGeneration
	a.mu.Unlock()

	a.renderer.MapRead(mirror, size, func(data []byte, err error) {
		a.mu.Lock()
		stale := generation != a.mirrorGeneration
		if !stale {
			a.mapInFlight = false
		}
		a.mu.Unlock()
		if stale {
			return
		}
		res := ReadbackResult{Frame: frame, Table: table, Err: err}
		if err == nil {
			res.Bodies = ApplyReadback(data, table)
		} else {
			common.Logger().Warn("physics readback failed", "frame", frame, "error", err)
		}
		a.readback.Publish(res)
	})
}

func (a *allocatorImpl) TakeReadback() (ReadbackResult, bool) {
	return a.readback.Take()
}

func (a *allocatorImpl) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gpu != nil {
		a.gpu.Release()
		a.gpu = nil
	}
	if a.mirror != nil {
		a.mirror.Release()
		a.mirror = nil
	}
	a.mirrorGeneration++
}
