// Package display shows captured frames in a shiny window.
package display

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/shiny/screen"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/size"
)

// Window receives images from any goroutine and shows the most recent one.
// Present never blocks, so it is safe to call from a capture callback.
type Window struct {
	title  string
	size   image.Point
	logger *slog.Logger

	// Recycle, when set, is handed every image the window is done with.
	Recycle func(*image.RGBA)

	pendingMu sync.Mutex
	pending   *image.RGBA

	wake    chan struct{}
	stopped chan error

	presented atomic.Uint64
	dropped   atomic.Uint64
}

func NewWindow(title string, size image.Point, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{
		title:   title,
		size:    size,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan error, 1),
	}
}

// Present queues img for display, replacing any image not yet shown. The
// window owns img from here on.
func (w *Window) Present(img *image.RGBA) {
	w.pendingMu.Lock()
	old := w.pending
	w.pending = img
	w.pendingMu.Unlock()

	w.presented.Add(1)
	if old != nil {
		w.dropped.Add(1)
		w.recycle(old)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Window) take() *image.RGBA {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	img := w.pending
	w.pending = nil
	return img
}

func (w *Window) recycle(img *image.RGBA) {
	if w.Recycle != nil {
		w.Recycle(img)
	}
}

// Dropped counts images replaced before the window could show them.
func (w *Window) Dropped() uint64 {
	return w.dropped.Load()
}

// Done reports when the window has been closed, with an error if it could
// not be opened.
func (w *Window) Done() <-chan error {
	return w.stopped
}

// Display runs the window's event loop. It is meant to be passed to
// driver.Main.
func (w *Window) Display(s screen.Screen) {
	win, err := s.NewWindow(&screen.NewWindowOptions{
		Title:  w.title,
		Width:  w.size.X,
		Height: w.size.Y,
	})
	if err != nil {
		w.stopped <- fmt.Errorf("could not create window: %w", err)
		return
	}
	defer win.Release()

	tex, err := s.NewTexture(w.size)
	if err != nil {
		w.stopped <- fmt.Errorf("could not create texture: %w", err)
		return
	}
	defer tex.Release()

	buf, err := s.NewBuffer(w.size)
	if err != nil {
		w.stopped <- fmt.Errorf("could not create buffer: %w", err)
		return
	}
	defer buf.Release()

	done := make(chan struct{})
	defer close(done)
	go publishUploadEvents(win, w.wake, done)

	sizeEvent := size.Event{WidthPx: w.size.X, HeightPx: w.size.Y}
	for {
		switch e := win.NextEvent().(type) {
		case lifecycle.Event:
			if e.To == lifecycle.StageDead {
				w.stopped <- nil
				return
			}

		case key.Event:
			if e.Code == key.CodeEscape {
				w.stopped <- nil
				return
			}

		case size.Event:
			sizeEvent = e

		case uploadEvent:
			img := w.take()
			if img == nil {
				continue
			}
			draw.Draw(buf.RGBA(), buf.Bounds(), img, img.Bounds().Min, draw.Src)
			w.recycle(img)
			tex.Upload(image.Point{}, buf, buf.Bounds())
		}

		win.Scale(sizeEvent.Bounds(), tex, tex.Bounds(), draw.Src, nil)
		win.Publish()
	}
}

// publishUploadEvents turns wake-ups into window events. The event carries
// no image: the loop takes whatever is pending when it gets there, so a
// backlog of events never replays stale frames.
func publishUploadEvents(q screen.EventDeque, wake <-chan struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-wake:
			q.Send(uploadEvent{})
		}
	}
}

type uploadEvent struct{}
