package display

import (
	"image"
	"image/color"
	"testing"

	"essaim.dev/freenect2/kinect"
	"essaim.dev/freenect2/pixel"
)

var smallGeneration = kinect.Generation{
	Name:      "small",
	ColorSize: image.Pt(6, 3),
	DepthSize: image.Pt(2, 2),
	MaxDepth:  4500,
}

func testPair(t *testing.T) kinect.Pair {
	t.Helper()

	rgb := pixel.NewRGB(image.Rectangle{Max: smallGeneration.ColorSize})
	bgra := make([]byte, 6*3*4)
	for i := 0; i < len(bgra); i += 4 {
		bgra[i+2], bgra[i+3] = 0xff, 0xff
	}
	if err := pixel.ColorToRGB(rgb, bgra); err != nil {
		t.Fatalf("ColorToRGB: %v", err)
	}

	depth := pixel.NewDepthImage(image.Rectangle{Max: smallGeneration.DepthSize}, pixel.Grayscale)
	depth.Pix[0] = 255

	return kinect.Pair{Seq: 1, Color: rgb, Depth: depth, MaxDepth: 4500}
}

func TestComposerLayout(t *testing.T) {
	t.Parallel()

	c := NewComposer(smallGeneration)
	if got, want := c.ColorRect(), image.Rect(0, 0, 4, 2); got != want {
		t.Fatalf("got color rect %v, want %v", got, want)
	}
	if got, want := c.DepthRect(), image.Rect(4, 0, 6, 2); got != want {
		t.Fatalf("got depth rect %v, want %v", got, want)
	}
	if got, want := c.Size(), image.Pt(6, 2+labelHeight); got != want {
		t.Fatalf("got size %v, want %v", got, want)
	}

	img, err := c.Compose(testPair(t))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	defer c.Release(img)

	if got := img.RGBAAt(1, 1); got.R < 250 || got.G != 0 || got.B != 0 {
		t.Errorf("got %v in color area, want red", got)
	}
	if got := img.RGBAAt(4, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("got %v at depth origin, want white", got)
	}
	if got := img.RGBAAt(5, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("got %v next to depth origin, want black", got)
	}
}

func TestComposerMirror(t *testing.T) {
	t.Parallel()

	c := NewComposer(smallGeneration)
	c.Mirror = true

	img, err := c.Compose(testPair(t))
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if got := img.RGBAAt(5, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("got %v at mirrored depth origin, want white", got)
	}
	if got := img.RGBAAt(4, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("got %v at (4,0), want black", got)
	}
}

func TestComposerRejectsWrongGeometry(t *testing.T) {
	t.Parallel()

	c := NewComposer(kinect.Freenect2)
	if _, err := c.Compose(testPair(t)); err == nil {
		t.Fatal("got nil error for mismatched color frame")
	}
}
