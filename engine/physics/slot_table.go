package physics

import (
	"slices"
)

// SlotTable maps physics-active entities onto dense slots of the physics buffer. Slots are always
// a permutation of [0, DispatchSize): one slot per entity and one entity per slot.
//
// A table is immutable once built. Each frame produces a new table with Rebuild, so a table
// captured for a readback still decodes the frame that produced it.
type SlotTable struct {
	// entities holds the entity owning each slot.
	entities []EntityID
	slots    map[EntityID]uint32

	bufferLength uint64
	excluded     []EntityID
}

// Rebuild builds the table for this frame from scratch. Entities already present in prev keep
// their relative order, new entities are appended in ascending ID order and anything beyond the
// slot capacity of bufferLength is reported as excluded. Duplicate IDs count once.
//
// Parameters:
//   - prev: the previous frame's table (the zero value on the first frame)
//   - active: the physics-active entities this frame
//   - bufferLength: the physics buffer length in u32 elements
//
// Returns:
//   - SlotTable: the dense table
func Rebuild(prev SlotTable, active []EntityID, bufferLength uint64) SlotTable {
	present := make(map[EntityID]bool, len(active))
	for _, id := range active {
		present[id] = true
	}

	ordered := make([]EntityID, 0, len(present))
	kept := make(map[EntityID]bool, len(present))
	for _, id := range prev.entities {
		if present[id] {
			ordered = append(ordered, id)
			kept[id] = true
		}
	}
	fresh := make([]EntityID, 0, len(present)-len(kept))
	for id := range present {
		if !kept[id] {
			fresh = append(fresh, id)
		}
	}
	slices.Sort(fresh)
	ordered = append(ordered, fresh...)

	t := SlotTable{bufferLength: bufferLength}
	capacity := int(SlotCapacity(bufferLength))
	if len(ordered) > capacity {
		t.excluded = append([]EntityID(nil), ordered[capacity:]...)
		ordered = ordered[:capacity]
	}
	t.entities = ordered
	t.slots = make(map[EntityID]uint32, len(ordered))
	for slot, id := range ordered {
		t.slots[id] = uint32(slot)
	}
	return t
}

// DispatchSize returns the number of occupied slots.
func (t SlotTable) DispatchSize() uint32 {
	return uint32(len(t.entities))
}

// BufferLength returns the buffer length in u32 elements the table was built for.
func (t SlotTable) BufferLength() uint64 {
	return t.bufferLength
}

// Slot returns the slot owned by id.
func (t SlotTable) Slot(id EntityID) (uint32, bool) {
	slot, ok := t.slots[id]
	return slot, ok
}

// Entity returns the entity owning slot.
func (t SlotTable) Entity(slot uint32) (EntityID, bool) {
	if int(slot) >= len(t.entities) {
		return 0, false
	}
	return t.entities[slot], true
}

// Entities returns the entities in slot order.
func (t SlotTable) Entities() []EntityID {
	return slices.Clone(t.entities)
}

// Excluded returns the entities that did not fit.
func (t SlotTable) Excluded() []EntityID {
	return slices.Clone(t.excluded)
}
