package common

import (
	"math"
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToU32 reinterprets a little-endian byte slice as a u32 slice view. Trailing bytes that do not
// fill a whole word are ignored.
//
// Parameters:
//   - data: the source bytes (must be 4-byte aligned in memory)
//
// Returns:
//   - []uint32: a view sharing memory with data
func BytesToU32(data []byte) []uint32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), n)
}

// FloorToInt returns floor(v) as an int32, saturating at the int32 range.
func FloorToInt(v float32) int32 {
	f := math.Floor(float64(v))
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

// spreadBits10 inserts two zero bits between each of the low 10 bits of v.
func spreadBits10(v uint32) uint32 {
	v &= 0x3ff
	v = (v | v<<16) & 0x030000ff
	v = (v | v<<8) & 0x0300f00f
	v = (v | v<<4) & 0x030c30c3
	v = (v | v<<2) & 0x09249249
	return v
}

// compactBits10 is the inverse of spreadBits10.
func compactBits10(v uint32) uint32 {
	v &= 0x09249249
	v = (v | v>>2) & 0x030c30c3
	v = (v | v>>4) & 0x0300f00f
	v = (v | v>>8) & 0x030000ff
	v = (v | v>>16) & 0x3ff
	return v
}

// MortonEncode3 interleaves the low 10 bits of x, y and z into a 30-bit Morton code.
//
// Parameters:
//   - x, y, z: lattice coordinates in [0, 1024)
//
// Returns:
//   - uint32: the Morton code with x in bit 0
func MortonEncode3(x, y, z uint32) uint32 {
	return spreadBits10(x) | spreadBits10(y)<<1 | spreadBits10(z)<<2
}

// MortonDecode3 splits a 30-bit Morton code back into its x, y and z components.
func MortonDecode3(code uint32) (x, y, z uint32) {
	return compactBits10(code), compactBits10(code >> 1), compactBits10(code >> 2)
}
