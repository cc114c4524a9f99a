package display

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"essaim.dev/freenect2/kinect"
	"essaim.dev/freenect2/pixel"
)

const labelHeight = 20

// Composer lays out a pair on one canvas: the color frame scaled to two
// thirds on the left, the depth frame at native size in the top right
// corner and a status line under it.
//
// Compose is not safe for concurrent use. Images it returns come from a
// pool; hand them back with Release once displayed.
type Composer struct {
	Mirror bool

	colorRect image.Rectangle
	depthRect image.Rectangle
	labelDot  fixed.Point26_6
	size      image.Point

	// scratch holds the color frame as RGBA so scaling takes the fast path.
	scratch *image.RGBA
	pool    sync.Pool
}

func NewComposer(gen kinect.Generation) *Composer {
	scaled := gen.ColorSize.Mul(2).Div(3)

	c := &Composer{
		colorRect: image.Rectangle{Max: scaled},
		depthRect: image.Rectangle{Max: gen.DepthSize}.Add(image.Pt(scaled.X, 0)),
		scratch:   image.NewRGBA(image.Rectangle{Max: gen.ColorSize}),
	}
	c.size = image.Pt(scaled.X+gen.DepthSize.X, max(scaled.Y, gen.DepthSize.Y+labelHeight))
	c.labelDot = fixed.P(c.depthRect.Min.X+4, c.depthRect.Max.Y+labelHeight-6)
	c.pool.New = func() any {
		return image.NewRGBA(image.Rectangle{Max: c.size})
	}

	return c
}

// Size is the canvas size, and so the window size.
func (c *Composer) Size() image.Point {
	return c.size
}

func (c *Composer) ColorRect() image.Rectangle {
	return c.colorRect
}

func (c *Composer) DepthRect() image.Rectangle {
	return c.depthRect
}

// Compose draws p onto a pooled canvas. It copies everything it needs, so
// it can be called from a subscriber while p is valid.
func (c *Composer) Compose(p kinect.Pair) (*image.RGBA, error) {
	dst := c.pool.Get().(*image.RGBA)
	xdraw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, xdraw.Src)

	if err := pixel.RGBToRGBA(c.scratch, p.Color); err != nil {
		c.Release(dst)
		return nil, fmt.Errorf("could not convert color frame: %w", err)
	}
	xdraw.ApproxBiLinear.Scale(dst, c.colorRect, c.scratch, c.scratch.Bounds(), xdraw.Src, nil)
	xdraw.Draw(dst, c.depthRect, p.Depth, p.Depth.Bounds().Min, xdraw.Src)

	if c.Mirror {
		pixel.FlipHorizontal(dst.SubImage(c.colorRect).(*image.RGBA))
		pixel.FlipHorizontal(dst.SubImage(c.depthRect).(*image.RGBA))
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{0xcc, 0xcc, 0xcc, 0xff}),
		Face: basicfont.Face7x13,
		Dot:  c.labelDot,
	}
	d.DrawString(fmt.Sprintf("#%d  color %d  depth %d  max %.0fmm",
		p.Seq, p.ColorTimestamp, p.DepthTimestamp, p.MaxDepth))

	return dst, nil
}

func (c *Composer) Release(img *image.RGBA) {
	if img == nil || img.Rect.Size() != c.size {
		return
	}
	c.pool.Put(img)
}
