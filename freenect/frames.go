package freenect

import "encoding/binary"

// decodeIR10 unpacks little endian 10-bit infrared samples into dst and returns the number
// of samples written. Values above the 10-bit range are clamped.
func decodeIR10(dst []uint16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = min(binary.LittleEndian.Uint16(src[2*i:]), 1023)
	}
	return n
}
