package device

import "encoding/binary"

// PackParams encodes 32-bit words into a little-endian parameter block
// padded to the 16-byte alignment uniform buffers require. Kernels
// declare the matching WGSL Params struct field for field.
func PackParams(words ...uint32) []byte {
	size := (len(words)*4 + 15) &^ 15
	if size == 0 {
		size = 16
	}
	buf := make([]byte, size)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// ParamAt reads the i-th 32-bit word of a parameter block.
func ParamAt(params []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(params[i*4:])
}
