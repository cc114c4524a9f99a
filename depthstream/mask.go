package depthstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/klauspost/compress/zstd"

	"essaim.dev/freenect2/pixel"
)

const (
	headerSize = 8

	// maxPacketSize is the largest UDP payload over IPv4.
	maxPacketSize = 65507

	maxMaskSide = 4096
)

var ErrBadPacket = errors.New("depthstream: malformed packet")

// Mask is a 1-bit image of everything closer than the depth threshold. Bits
// are packed row-major, most significant bit first.
type Mask struct {
	Seq    uint32
	Width  int
	Height int
	Bits   []byte
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]byte, (width*height+7)/8),
	}
}

func (m *Mask) Set(i int) {
	m.Bits[i/8] |= 0x80 >> (i % 8)
}

func (m *Mask) On(i int) bool {
	return m.Bits[i/8]&(0x80>>(i%8)) != 0
}

// Count returns the number of pixels switched on.
func (m *Mask) Count() int {
	n := 0
	for i := 0; i < m.Width*m.Height; i++ {
		if m.On(i) {
			n++
		}
	}
	return n
}

// Threshold switches on every pixel with a depth reading at or below level.
// Level 0 means no reading and stays off.
func Threshold(depth *image.Paletted, level uint8) *Mask {
	b := depth.Bounds()
	m := NewMask(b.Dx(), b.Dy())

	for y := 0; y < b.Dy(); y++ {
		row := depth.Pix[y*depth.Stride : y*depth.Stride+b.Dx()]
		for x, v := range row {
			if v == 0 || v > level {
				continue // No reading, or further than the threshold.
			}
			m.Set(y*b.Dx() + x)
		}
	}

	return m
}

// RGBA paints the mask with col on black.
func (m *Mask) RGBA(col color.Color) *image.RGBA {
	c, _ := color.RGBAModel.Convert(col).(color.RGBA)
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))

	for i := 0; i < m.Width*m.Height; i++ {
		p := img.Pix[i*4 : i*4+4]
		if m.On(i) {
			p[0], p[1], p[2] = c.R, c.G, c.B
		}
		p[3] = 0xff
	}

	return img
}

func encodeMask(enc *zstd.Encoder, m *Mask) []byte {
	packet := make([]byte, headerSize, headerSize+len(m.Bits))
	binary.BigEndian.PutUint32(packet[0:], m.Seq)
	binary.BigEndian.PutUint16(packet[4:], uint16(m.Width))
	binary.BigEndian.PutUint16(packet[6:], uint16(m.Height))

	return enc.EncodeAll(m.Bits, packet)
}

func decodeMask(dec *zstd.Decoder, packet []byte) (*Mask, error) {
	if len(packet) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPacket, len(packet))
	}

	w := int(binary.BigEndian.Uint16(packet[4:]))
	h := int(binary.BigEndian.Uint16(packet[6:]))
	if w == 0 || h == 0 || w > maxMaskSide || h > maxMaskSide {
		return nil, fmt.Errorf("%w: %dx%d mask", ErrBadPacket, w, h)
	}

	m := NewMask(w, h)
	m.Seq = binary.BigEndian.Uint32(packet[0:])

	bits, err := dec.DecodeAll(packet[headerSize:], m.Bits[:0])
	if err != nil {
		return nil, fmt.Errorf("could not decode mask: %w", err)
	}
	if len(bits) != len(m.Bits) {
		return nil, fmt.Errorf("%w: %d mask bytes for %dx%d", ErrBadPacket, len(bits), m.Width, m.Height)
	}
	m.Bits = bits

	return m, nil
}

// thresholdLevel maps a distance in millimetres onto the depth image's
// 8-bit scale.
func thresholdLevel(mm, maxDepth float32) uint8 {
	return pixel.DepthLevel(mm, maxDepth)
}
