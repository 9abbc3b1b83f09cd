// Package depthstream publishes the silhouette of the people in front of the sensor over UDP
// multicast, one zstd compressed bitmap per frame.
package depthstream

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const (
	packetVersion = 1
	headerSize    = 1 + 2 + 2 + 8

	// maxPacketSize is the largest UDP payload.
	maxPacketSize = 65507
	// maxFrameBytes bounds the decompressed bitmap, enough for 1920x1080.
	maxFrameBytes = 1 << 18

	// DefaultThreshold is the distance in millimeters under which a depth pixel is part of the
	// silhouette when no scene segmentation is available.
	DefaultThreshold = 2000
)

// ErrMalformedFrame is returned when decoding a packet that is not a silhouette frame.
var ErrMalformedFrame = errors.New("malformed silhouette frame")

// Frame is a one bit per pixel silhouette, row major, most significant bit first.
type Frame struct {
	Width   int
	Height  int
	FrameID uint64
	Bits    []byte
}

// NewFrame returns an empty w by h silhouette.
func NewFrame(w, h int) Frame {
	return Frame{Width: w, Height: h, Bits: make([]byte, (w*h+7)/8)}
}

func (f *Frame) resize(w, h int) {
	n := (w*h + 7) / 8
	if cap(f.Bits) < n {
		f.Bits = make([]byte, n)
	}
	f.Bits = f.Bits[:n]
	clear(f.Bits)
	f.Width, f.Height = w, h
}

func (f *Frame) set(idx int) {
	f.Bits[idx/8] |= 0x80 >> (idx % 8)
}

// At reports whether pixel (x, y) is part of the silhouette.
func (f Frame) At(x, y int) bool {
	idx := y*f.Width + x
	return f.Bits[idx/8]&(0x80>>(idx%8)) != 0
}

// Count returns the number of pixels in the silhouette.
func (f Frame) Count() int {
	n := 0
	for idx, size := 0, f.Width*f.Height; idx < size; idx++ {
		if f.Bits[idx/8]&(0x80>>(idx%8)) != 0 {
			n++
		}
	}
	return n
}

// FromScene sets the pixels labelled with a user.
func (f *Frame) FromScene(w, h int, labels []int) {
	f.resize(w, h)
	for idx, l := range labels[:w*h] {
		if l != 0 {
			f.set(idx)
		}
	}
}

// FromDepth sets the pixels holding a sample closer than threshold millimeters.
func (f *Frame) FromDepth(w, h int, depth []int, threshold int) {
	f.resize(w, h)
	for idx, d := range depth[:w*h] {
		if d == 0 || d > threshold {
			continue
		}
		f.set(idx)
	}
}

// AppendPacket appends the encoded frame to dst.
func (f Frame) AppendPacket(enc *zstd.Encoder, dst []byte) []byte {
	var header [headerSize]byte
	header[0] = packetVersion
	binary.BigEndian.PutUint16(header[1:], uint16(f.Width))
	binary.BigEndian.PutUint16(header[3:], uint16(f.Height))
	binary.BigEndian.PutUint64(header[5:], f.FrameID)

	dst = append(dst, header[:]...)
	return enc.EncodeAll(f.Bits, dst)
}

// DecodePacket decodes a packet built by AppendPacket.
func DecodePacket(dec *zstd.Decoder, packet []byte) (Frame, error) {
	if len(packet) < headerSize {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "packet of %d bytes", len(packet))
	}
	if packet[0] != packetVersion {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "version %d", packet[0])
	}

	f := Frame{
		Width:   int(binary.BigEndian.Uint16(packet[1:])),
		Height:  int(binary.BigEndian.Uint16(packet[3:])),
		FrameID: binary.BigEndian.Uint64(packet[5:]),
	}
	want := (f.Width*f.Height + 7) / 8
	if want > maxFrameBytes {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "%dx%d frame is too large", f.Width, f.Height)
	}

	bits, err := dec.DecodeAll(packet[headerSize:], make([]byte, 0, want))
	if err != nil {
		return Frame{}, errors.Wrap(err, "could not decompress frame")
	}
	if len(bits) != want {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "%dx%d frame with %d bytes", f.Width, f.Height, len(bits))
	}
	f.Bits = bits
	return f, nil
}

// RGBA draws the silhouette in col over an opaque black background.
func (f Frame) RGBA(col color.Color) *image.RGBA {
	rgbaCol, _ := color.RGBAModel.Convert(col).(color.RGBA)

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for idx, size := 0, f.Width*f.Height; idx < size; idx++ {
		px := img.Pix[idx*4 : idx*4+4]
		if f.Bits[idx/8]&(0x80>>(idx%8)) != 0 {
			px[0], px[1], px[2] = rgbaCol.R, rgbaCol.G, rgbaCol.B
		}
		px[3] = 255
	}
	return img
}
