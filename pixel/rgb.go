package pixel

import (
	"image"
	"image/color"
)

// RGB is an in-memory image of packed 24-bit pixels. Each pixel is stored as
// three bytes in R, G, B order and rows start Stride bytes apart, so a row may
// carry alignment padding after its last pixel.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB returns an RGB image whose rows are padded to a multiple of four
// bytes, the way device-independent bitmaps lay out 24-bit scanlines.
func NewRGB(r image.Rectangle) *RGB {
	return NewRGBStride(r, (r.Dx()*RGBBytesPerPixel+3)&^3)
}

// NewRGBStride returns an RGB image with an explicit row stride. A stride
// smaller than the packed row width is widened to it.
func NewRGBStride(r image.Rectangle, stride int) *RGB {
	if packed := r.Dx() * RGBBytesPerPixel; stride < packed {
		stride = packed
	}
	return &RGB{
		Pix:    make([]uint8, stride*r.Dy()),
		Stride: stride,
		Rect:   r,
	}
}

func (p *RGB) ColorModel() color.Model {
	return color.RGBAModel
}

func (p *RGB) Bounds() image.Rectangle {
	return p.Rect
}

func (p *RGB) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

func (p *RGB) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{s[0], s[1], s[2], 0xff}
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*RGBBytesPerPixel
}

func (p *RGB) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &RGB{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &RGB{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

// Clone returns a deep copy of p.
func (p *RGB) Clone() *RGB {
	pix := make([]uint8, len(p.Pix))
	copy(pix, p.Pix)
	return &RGB{Pix: pix, Stride: p.Stride, Rect: p.Rect}
}

// RGBToRGBA expands src into dst, which must have the same dimensions.
func RGBToRGBA(dst *image.RGBA, src *RGB) error {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		return sizeError("rgba destination", dst.Rect.Dx(), dst.Rect.Dy(), w, h)
	}

	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+w*RGBBytesPerPixel]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w*RGBABytesPerPixel]
		for i, j := 0, 0; i < len(s); i, j = i+3, j+4 {
			d[j] = s[i]
			d[j+1] = s[i+1]
			d[j+2] = s[i+2]
			d[j+3] = 0xff
		}
	}

	return nil
}
