package frame

import (
	"bytes"
	"errors"
	"image"
	"sync"
	"testing"

	"essaim.dev/freenect2/pixel"
)

func uniformBGRA(w, h int, v byte) []byte {
	return bytes.Repeat([]byte{v}, w*h*pixel.BGRABytesPerPixel)
}

func TestBufferWriteAndView(t *testing.T) {
	t.Parallel()

	b := NewBuffer(image.Pt(2, 1), image.Pt(2, 1), pixel.Grayscale, 1000)

	if err := b.Write(Color, []byte{1, 2, 3, 0, 4, 5, 6, 0}, 11); err != nil {
		t.Fatalf("Write color: %v", err)
	}
	if err := b.Write(Depth, pixel.EncodeDepth([]float32{0, 2000}), 12); err != nil {
		t.Fatalf("Write depth: %v", err)
	}

	b.View(func(f Frames) {
		if got, want := f.Color.Pix[:6], []byte{3, 2, 1, 6, 5, 4}; !bytes.Equal(got, want) {
			t.Errorf("color: got %v, want %v", got, want)
		}
		if got, want := f.Depth.Pix, []byte{0, 255}; !bytes.Equal(got, want) {
			t.Errorf("depth: got %v, want %v", got, want)
		}
		if f.ColorTimestamp != 11 || f.DepthTimestamp != 12 {
			t.Errorf("got timestamps %d/%d, want 11/12", f.ColorTimestamp, f.DepthTimestamp)
		}
	})
}

func TestBufferRejectsBadInput(t *testing.T) {
	t.Parallel()

	b := NewBuffer(image.Pt(2, 2), image.Pt(2, 2), pixel.Grayscale, 1000)

	if err := b.Write(Modality(9), nil, 0); !errors.Is(err, ErrUnknownModality) {
		t.Fatalf("got %v, want ErrUnknownModality", err)
	}
	if _, err := b.Snapshot(Modality(9)); !errors.Is(err, ErrUnknownModality) {
		t.Fatalf("got %v, want ErrUnknownModality", err)
	}
	if err := b.Write(Color, make([]byte, 3), 0); !errors.Is(err, pixel.ErrSizeMismatch) {
		t.Fatalf("got %v, want ErrSizeMismatch", err)
	}
}

func TestBufferSnapshotIsPrivate(t *testing.T) {
	t.Parallel()

	b := NewBuffer(image.Pt(2, 2), image.Pt(2, 2), pixel.Grayscale, 1000)
	if err := b.Write(Color, uniformBGRA(2, 2, 7), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, err := b.Snapshot(Color)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := b.Write(Color, uniformBGRA(2, 2, 9), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := snap.(*pixel.RGB).Pix[0]; got != 7 {
		t.Fatalf("snapshot changed after write: got %d, want 7", got)
	}
}

func TestBufferNeverTears(t *testing.T) {
	t.Parallel()

	const w, h = 16, 8
	b := NewBuffer(image.Pt(w, h), image.Pt(w, h), pixel.Grayscale, 1000)
	frames := [][]byte{uniformBGRA(w, h, 0x00), uniformBGRA(w, h, 0xff)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if err := b.Write(Color, frames[i%2], uint32(i)); err != nil {
				t.Errorf("Write: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap, err := b.Snapshot(Color)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		img := snap.(*pixel.RGB)
		first := img.Pix[0]
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+w*pixel.RGBBytesPerPixel]
			if bytes.Count(row, []byte{first}) != len(row) {
				t.Fatalf("torn frame at row %d", y)
			}
		}
	}

	wg.Wait()
}
