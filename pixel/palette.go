package pixel

import (
	"fmt"
	"image"
	"image/color"
)

// PaletteFunc returns the display color of depth level i.
type PaletteFunc func(i uint8) color.RGBA

func GrayLevel(i uint8) color.RGBA {
	return color.RGBA{i, i, i, 0xff}
}

// FalseColorLevel spreads neighbouring levels apart so small depth steps stay
// visible. Channel arithmetic wraps modulo 256.
func FalseColorLevel(i uint8) color.RGBA {
	return color.RGBA{i * 12, i, i * 8, 0xff}
}

// BuildPalette returns the 256-entry palette produced by fn.
func BuildPalette(fn PaletteFunc) color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = fn(uint8(i))
	}
	return p
}

var (
	Grayscale  = BuildPalette(GrayLevel)
	FalseColor = BuildPalette(FalseColorLevel)
)

// PaletteByName looks up one of the built-in palettes.
func PaletteByName(name string) (color.Palette, error) {
	switch name {
	case "", "grayscale", "gray":
		return Grayscale, nil
	case "falsecolor", "false-color":
		return FalseColor, nil
	}
	return nil, fmt.Errorf("unknown palette %q", name)
}

// NewDepthImage returns an 8-bit indexed image for converted depth frames.
func NewDepthImage(r image.Rectangle, p color.Palette) *image.Paletted {
	return image.NewPaletted(r, p)
}

// ClonePaletted returns a copy of src that shares only its palette.
func ClonePaletted(src *image.Paletted) *image.Paletted {
	dst := &image.Paletted{
		Pix:     make([]uint8, len(src.Pix)),
		Stride:  src.Stride,
		Rect:    src.Rect,
		Palette: src.Palette,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
