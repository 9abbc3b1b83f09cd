package freenect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeIR10(t *testing.T) {
	dst := make([]uint16, 4)
	n := decodeIR10(dst, []byte{0x01, 0x00, 0xff, 0x03, 0xff, 0xff})
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint16{1, 1023, 1023, 0}, dst)

	n = decodeIR10(dst[:1], []byte{0x02, 0x00, 0x03, 0x00})
	assert.Equal(t, 1, n)
	assert.Equal(t, uint16(2), dst[0])
}
