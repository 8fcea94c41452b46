package sim

// DataType represents the element kind of a device array.
//
// The runtime stores exactly two kinds on device: 32-bit floats and
// 32-bit signed integers. Wider host inputs (float64, int64, int) are
// normalized down to these at push time.
type DataType int

// Canonical on-device element kinds.
const (
	Float32 DataType = iota
	Int32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}
