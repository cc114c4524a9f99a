// Package pixel converts raw Kinect frame buffers into display-ready images.
//
// Color frames arrive as tightly packed BGRA (4 bytes per pixel), depth frames
// as little-endian float32 distances in millimetres. Every function here is
// pure: it touches only the buffers it is given, so distinct buffers may be
// converted concurrently.
package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	BGRABytesPerPixel  = 4
	RGBBytesPerPixel   = 3
	RGBABytesPerPixel  = 4
	DepthBytesPerPixel = 4
)

// ErrSizeMismatch is returned when a source buffer does not match the
// dimensions of its destination image.
var ErrSizeMismatch = errors.New("pixel: size mismatch")

func sizeError(what string, gotW, gotH, wantW, wantH int) error {
	return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrSizeMismatch, what, gotW, gotH, wantW, wantH)
}

func checkSource(src []byte, w, h, bpp int) error {
	if want := w * h * bpp; len(src) != want {
		return fmt.Errorf("%w: source has %d bytes, want %d for %dx%d", ErrSizeMismatch, len(src), want, w, h)
	}
	return nil
}

func checkRows(pix []uint8, stride, rowBytes, h int) error {
	if h == 0 {
		return nil
	}
	if stride < rowBytes {
		return fmt.Errorf("%w: stride %d shorter than row of %d bytes", ErrSizeMismatch, stride, rowBytes)
	}
	if need := (h-1)*stride + rowBytes; len(pix) < need {
		return fmt.Errorf("%w: destination has %d bytes, want at least %d", ErrSizeMismatch, len(pix), need)
	}
	return nil
}

// ColorToRGB converts a BGRA frame into dst, dropping alpha. Rows are written
// at multiples of dst.Stride and any padding after a row is left untouched.
func ColorToRGB(dst *RGB, src []byte) error {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if err := checkSource(src, w, h, BGRABytesPerPixel); err != nil {
		return err
	}
	if err := checkRows(dst.Pix, dst.Stride, w*RGBBytesPerPixel, h); err != nil {
		return err
	}

	for y := 0; y < h; y++ {
		s := src[y*w*BGRABytesPerPixel : (y+1)*w*BGRABytesPerPixel]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w*RGBBytesPerPixel]
		for i, j := 0, 0; i < len(s); i, j = i+4, j+3 {
			d[j] = s[i+2]
			d[j+1] = s[i+1]
			d[j+2] = s[i]
		}
	}

	return nil
}

// ColorToRGBA converts a BGRA frame into dst. The sensor leaves the fourth
// byte undefined, so every destination pixel is written fully opaque.
func ColorToRGBA(dst *image.RGBA, src []byte) error {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if err := checkSource(src, w, h, BGRABytesPerPixel); err != nil {
		return err
	}
	if err := checkRows(dst.Pix, dst.Stride, w*RGBABytesPerPixel, h); err != nil {
		return err
	}

	for y := 0; y < h; y++ {
		s := src[y*w*BGRABytesPerPixel : (y+1)*w*BGRABytesPerPixel]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w*RGBABytesPerPixel]
		for i := 0; i < len(s); i += 4 {
			d[i] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i]
			d[i+3] = 0xff
		}
	}

	return nil
}

// DepthLevel maps a depth sample onto 0..255. Zero, negative and NaN samples
// are 0 (black), samples at or beyond maxDepth are 255 (white).
func DepthLevel(depth, maxDepth float32) uint8 {
	v := depth / maxDepth
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	}
	return uint8(255 * v)
}

// DepthToGray converts a float32 depth frame into the palette indices of dst.
// Rows are split into bands converted in parallel.
func DepthToGray(dst *image.Paletted, src []byte, maxDepth float32) error {
	if !(maxDepth > 0) {
		return fmt.Errorf("pixel: max depth must be positive, got %v", maxDepth)
	}
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if err := checkSource(src, w, h, DepthBytesPerPixel); err != nil {
		return err
	}
	if err := checkRows(dst.Pix, dst.Stride, w, h); err != nil {
		return err
	}
	if h == 0 {
		return nil
	}

	workers := min(runtime.GOMAXPROCS(0), h)
	band := (h + workers - 1) / workers

	var g errgroup.Group
	for y0 := 0; y0 < h; y0 += band {
		y0 := y0
		y1 := min(y0+band, h)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				row := src[y*w*DepthBytesPerPixel : (y+1)*w*DepthBytesPerPixel]
				out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
				for x := range out {
					d := math.Float32frombits(binary.LittleEndian.Uint32(row[x*DepthBytesPerPixel:]))
					out[x] = DepthLevel(d, maxDepth)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// EncodeDepth lays depths out the way the sensor delivers them.
func EncodeDepth(depths []float32) []byte {
	b := make([]byte, len(depths)*DepthBytesPerPixel)
	for i, d := range depths {
		binary.LittleEndian.PutUint32(b[i*DepthBytesPerPixel:], math.Float32bits(d))
	}
	return b
}
