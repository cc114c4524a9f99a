package display

import (
	"image"
	"testing"
)

func TestPresentKeepsLatest(t *testing.T) {
	t.Parallel()

	w := NewWindow("test", image.Pt(4, 4), nil)

	var recycled []*image.RGBA
	w.Recycle = func(img *image.RGBA) { recycled = append(recycled, img) }

	first := image.NewRGBA(image.Rect(0, 0, 4, 4))
	second := image.NewRGBA(image.Rect(0, 0, 4, 4))
	w.Present(first)
	w.Present(second)

	if got := w.Dropped(); got != 1 {
		t.Fatalf("got %d dropped, want 1", got)
	}
	if len(recycled) != 1 || recycled[0] != first {
		t.Fatalf("got recycled %v, want the first image", recycled)
	}
	if got := w.take(); got != second {
		t.Fatal("pending image is not the latest one")
	}
	if got := w.take(); got != nil {
		t.Fatal("pending image not cleared by take")
	}
	if got := len(w.wake); got != 1 {
		t.Fatalf("got %d wake-ups queued, want 1", got)
	}
}
