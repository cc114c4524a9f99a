package frame

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"essaim.dev/freenect2/pixel"
)

// Frames is a read view of both modalities. It is only valid inside the
// function passed to Buffer.View.
type Frames struct {
	Color          *pixel.RGB
	ColorTimestamp uint32
	Depth          *image.Paletted
	DepthTimestamp uint32
}

// Buffer owns one reusable color image and one reusable depth image. Each is
// overwritten in place by Write under its own lock, so readers see either the
// previous frame or the new one in full.
type Buffer struct {
	maxDepth float32

	colorMu        sync.RWMutex
	color          *pixel.RGB
	colorTimestamp uint32

	depthMu        sync.RWMutex
	depth          *image.Paletted
	depthTimestamp uint32
}

func NewBuffer(colorSize, depthSize image.Point, palette color.Palette, maxDepth float32) *Buffer {
	return &Buffer{
		maxDepth: maxDepth,
		color:    pixel.NewRGB(image.Rectangle{Max: colorSize}),
		depth:    pixel.NewDepthImage(image.Rectangle{Max: depthSize}, palette),
	}
}

// Write converts a raw sensor frame into the buffer for m.
func (b *Buffer) Write(m Modality, src []byte, timestamp uint32) error {
	switch m {
	case Color:
		b.colorMu.Lock()
		defer b.colorMu.Unlock()

		if err := pixel.ColorToRGB(b.color, src); err != nil {
			return fmt.Errorf("could not convert color frame: %w", err)
		}
		b.colorTimestamp = timestamp

	case Depth:
		b.depthMu.Lock()
		defer b.depthMu.Unlock()

		if err := pixel.DepthToGray(b.depth, src, b.maxDepth); err != nil {
			return fmt.Errorf("could not convert depth frame: %w", err)
		}
		b.depthTimestamp = timestamp

	default:
		return fmt.Errorf("%w: %d", ErrUnknownModality, int(m))
	}

	return nil
}

// View calls fn with both frames while holding their read locks. fn must not
// retain the images and must not call Write.
func (b *Buffer) View(fn func(Frames)) {
	b.colorMu.RLock()
	defer b.colorMu.RUnlock()
	b.depthMu.RLock()
	defer b.depthMu.RUnlock()

	fn(Frames{
		Color:          b.color,
		ColorTimestamp: b.colorTimestamp,
		Depth:          b.depth,
		DepthTimestamp: b.depthTimestamp,
	})
}

// Snapshot returns a private copy of the current frame for m.
func (b *Buffer) Snapshot(m Modality) (image.Image, error) {
	switch m {
	case Color:
		b.colorMu.RLock()
		defer b.colorMu.RUnlock()

		return b.color.Clone(), nil

	case Depth:
		b.depthMu.RLock()
		defer b.depthMu.RUnlock()

		return pixel.ClonePaletted(b.depth), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownModality, int(m))
}
