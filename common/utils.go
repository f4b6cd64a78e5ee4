package common

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// WorkgroupCount returns the number of workgroups of the given size needed to cover n invocations.
// A zero size is treated as 1.
//
// Parameters:
//   - n: the number of invocations to cover
//   - size: the workgroup size along the dispatched dimension
//
// Returns:
//   - uint32: ceil(n / size)
func WorkgroupCount(n, size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	return (n + size - 1) / size
}
