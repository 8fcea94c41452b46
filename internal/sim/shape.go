// Package sim provides the core value types of the Stampede runtime:
// shapes, element kinds, host-side payload arrays, and launch geometry.
package sim

import "fmt"

// Shape represents the dimensions of a device array.
// By convention the leading dimension is the environment count, and for
// per-agent arrays the second dimension is the agent count.
type Shape []int

// NumElements returns the total number of elements in the shape.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Offset computes the row-major (last-axis-fastest) linear offset of a
// multi-dimensional index. This is the single indexing convention shared
// between the data store's allocation order and every kernel: any code
// that addresses a flattened array must agree with Offset.
func (s Shape) Offset(index ...int) int {
	if len(index) != len(s) {
		panic(fmt.Sprintf("offset: index rank %d does not match shape rank %d", len(index), len(s)))
	}
	off := 0
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		if index[i] < 0 || index[i] >= s[i] {
			panic(fmt.Sprintf("offset: index %d out of range for dimension %d (size %d)", index[i], i, s[i]))
		}
		off += index[i] * stride
		stride *= s[i]
	}
	return off
}

// PerEnv returns the number of elements belonging to one environment's
// slice, assuming the leading dimension is the environment count.
func (s Shape) PerEnv() int {
	if len(s) == 0 {
		return 1
	}
	return s.NumElements() / s[0]
}

// String returns a compact representation like [4 8 3].
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}
