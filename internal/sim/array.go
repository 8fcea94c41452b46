package sim

import (
	"fmt"
	"unsafe"
)

// HostArray is a host-resident payload: a contiguously allocated,
// row-major array with runtime type information. It is the currency of
// push (host to device) and pull (device to host) transfers.
type HostArray struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewHostArray allocates a zero-filled host array.
func NewHostArray(shape Shape, dtype DataType) (*HostArray, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &HostArray{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromPayload normalizes an arbitrary host payload into a HostArray.
//
// Accepted payloads: []float32, []float64, []int32, []int64, []int, and
// the corresponding scalars (treated as shape [1]). Wider element kinds
// are narrowed to the canonical 32-bit kinds; float64 narrowing carries
// the usual rounding, integer narrowing truncates to 32 bits.
func FromPayload(shape Shape, payload any) (*HostArray, error) {
	var (
		arr *HostArray
		err error
	)
	switch p := payload.(type) {
	case []float32:
		arr, err = fromSlice(shape, p, Float32, func(dst []float32, src []float32) { copy(dst, src) })
	case []float64:
		arr, err = fromSlice(shape, p, Float32, func(dst []float32, src []float64) {
			for i, v := range src {
				dst[i] = float32(v)
			}
		})
	case []int32:
		arr, err = fromSliceInt(shape, p, func(dst []int32, src []int32) { copy(dst, src) })
	case []int64:
		arr, err = fromSliceInt(shape, p, func(dst []int32, src []int64) {
			for i, v := range src {
				dst[i] = int32(v)
			}
		})
	case []int:
		arr, err = fromSliceInt(shape, p, func(dst []int32, src []int) {
			for i, v := range src {
				dst[i] = int32(v)
			}
		})
	case float32:
		return FromPayload(Shape{1}, []float32{p})
	case float64:
		return FromPayload(Shape{1}, []float64{p})
	case int32:
		return FromPayload(Shape{1}, []int32{p})
	case int64:
		return FromPayload(Shape{1}, []int64{p})
	case int:
		return FromPayload(Shape{1}, []int{p})
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
	return arr, err
}

func fromSlice[S any](shape Shape, src []S, dtype DataType, fill func([]float32, []S)) (*HostArray, error) {
	arr, err := NewHostArray(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(src) != shape.NumElements() {
		return nil, fmt.Errorf("payload has %d elements, shape %v wants %d", len(src), shape, shape.NumElements())
	}
	fill(arr.AsFloat32(), src)
	return arr, nil
}

func fromSliceInt[S any](shape Shape, src []S, fill func([]int32, []S)) (*HostArray, error) {
	arr, err := NewHostArray(shape, Int32)
	if err != nil {
		return nil, err
	}
	if len(src) != shape.NumElements() {
		return nil, fmt.Errorf("payload has %d elements, shape %v wants %d", len(src), shape, shape.NumElements())
	}
	fill(arr.AsInt32(), src)
	return arr, nil
}

// WrapBytes adopts raw bytes pulled from a device allocation.
// The byte length must match the shape and dtype exactly.
func WrapBytes(shape Shape, dtype DataType, data []byte) (*HostArray, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	want := shape.NumElements() * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("byte length %d does not match shape %v of %s (want %d)", len(data), shape, dtype, want)
	}
	return &HostArray{data: data, shape: shape.Clone(), dtype: dtype}, nil
}

// Shape returns the array's shape.
func (a *HostArray) Shape() Shape { return a.shape }

// DType returns the array's element kind.
func (a *HostArray) DType() DataType { return a.dtype }

// NumElements returns the total element count.
func (a *HostArray) NumElements() int { return a.shape.NumElements() }

// ByteSize returns the total memory size in bytes.
func (a *HostArray) ByteSize() int { return len(a.data) }

// Bytes returns the raw backing bytes.
// WARNING: direct access to underlying memory. Use with caution.
func (a *HostArray) Bytes() []byte { return a.data }

// Clone returns a deep copy of the array.
func (a *HostArray) Clone() *HostArray {
	data := make([]byte, len(a.data))
	copy(data, a.data)
	return &HostArray{data: data, shape: a.shape.Clone(), dtype: a.dtype}
}

// AsFloat32 interprets the data as []float32.
// Panics if the array's dtype is not Float32.
func (a *HostArray) AsFloat32() []float32 {
	if a.dtype != Float32 {
		panic(fmt.Sprintf("array dtype is %s, not float32", a.dtype))
	}
	return Float32View(a.data)
}

// AsInt32 interprets the data as []int32.
// Panics if the array's dtype is not Int32.
func (a *HostArray) AsInt32() []int32 {
	if a.dtype != Int32 {
		panic(fmt.Sprintf("array dtype is %s, not int32", a.dtype))
	}
	return Int32View(a.data)
}

// Float32View reinterprets raw bytes as []float32 without copying.
func Float32View(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length derived from input
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// Int32View reinterprets raw bytes as []int32 without copying.
func Int32View(data []byte) []int32 {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length derived from input
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// Uint32View reinterprets raw bytes as []uint32 without copying.
func Uint32View(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length derived from input
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
