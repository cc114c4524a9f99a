package kinect

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/pixel"
	"essaim.dev/freenect2/simdriver"
)

var testGeneration = Generation{
	Name:      "test",
	ColorSize: image.Pt(4, 2),
	DepthSize: image.Pt(2, 2),
	MaxDepth:  4500,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDriver returns a driver whose producer never fires on its own, so
// tests drive every callback through the Emit helpers.
func newTestDriver(devices int) *simdriver.Driver {
	d := simdriver.New(devices)
	d.Interval = time.Hour
	d.ColorSize = testGeneration.ColorSize
	d.DepthSize = testGeneration.DepthSize
	return d
}

func openSession(t *testing.T, gen Generation) (*Session, *simdriver.Device) {
	t.Helper()

	r := NewRegistry(newTestDriver(1), discardLogger())
	s, err := r.Open(Config{Generation: gen})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s, s.device.(*simdriver.Device)
}

func colorFrame(b, g, r, a byte) []byte {
	buf := make([]byte, testGeneration.ColorSize.X*testGeneration.ColorSize.Y*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = b, g, r, a
	}
	return buf
}

func depthFrame(mm float32) []byte {
	samples := make([]float32, testGeneration.DepthSize.X*testGeneration.DepthSize.Y)
	for i := range samples {
		samples[i] = mm
	}
	return pixel.EncodeDepth(samples)
}

type recorder struct {
	mu    sync.Mutex
	pairs []Pair
}

func (r *recorder) record(p Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pairs = append(r.pairs, p.Clone())
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pairs)
}

func TestSessionPairsFrames(t *testing.T) {
	t.Parallel()

	s, dev := openSession(t, testGeneration)
	rec := &recorder{}
	s.Subscribe(rec.record)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.EmitColor(colorFrame(10, 20, 30, 40), 1)
	dev.EmitDepth(depthFrame(4500), 2)
	dev.EmitColor(colorFrame(1, 2, 3, 4), 3)
	dev.EmitColor(colorFrame(1, 2, 3, 4), 4)
	dev.EmitDepth(depthFrame(0), 5)

	if got := rec.len(); got != 2 {
		t.Fatalf("got %d pairs, want 2", got)
	}

	first := rec.pairs[0]
	if got := first.Color.Pix[:3]; got[0] != 30 || got[1] != 20 || got[2] != 10 {
		t.Errorf("got color pixel %v, want [30 20 10]", got)
	}
	if got := first.Depth.Pix[0]; got != 255 {
		t.Errorf("got depth level %d, want 255", got)
	}
	if first.ColorTimestamp != 1 || first.DepthTimestamp != 2 {
		t.Errorf("got timestamps %d/%d, want 1/2", first.ColorTimestamp, first.DepthTimestamp)
	}
	if first.MaxDepth != 4500 {
		t.Errorf("got max depth %v, want 4500", first.MaxDepth)
	}

	second := rec.pairs[1]
	if second.Seq != 2 {
		t.Errorf("got seq %d, want 2", second.Seq)
	}
	if second.ColorTimestamp != 4 {
		t.Errorf("got color timestamp %d, want latest 4", second.ColorTimestamp)
	}
	if got := second.Depth.Pix[0]; got != 0 {
		t.Errorf("got depth level %d, want 0", got)
	}

	stats := s.Stats()
	if stats.ColorFrames != 3 || stats.DepthFrames != 2 || stats.Pairs != 2 {
		t.Errorf("got stats %+v, want 3 color, 2 depth, 2 pairs", stats)
	}
	if stats.ID != s.ID() {
		t.Errorf("got stats id %q, want %q", stats.ID, s.ID())
	}
}

func TestSessionCombinedCallback(t *testing.T) {
	t.Parallel()

	gen := testGeneration
	gen.Combined = true
	s, dev := openSession(t, gen)
	rec := &recorder{}
	s.Subscribe(rec.record)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.EmitFrames(colorFrame(1, 2, 3, 4), depthFrame(1000), nil)
	dev.EmitFrames(colorFrame(1, 2, 3, 4), depthFrame(1000), nil)

	if got := rec.len(); got != 2 {
		t.Fatalf("got %d pairs, want 2", got)
	}
	if p := rec.pairs[1]; p.ColorTimestamp != 2 || p.DepthTimestamp != 2 {
		t.Errorf("got timestamps %d/%d, want 2/2", p.ColorTimestamp, p.DepthTimestamp)
	}
}

func TestSessionAccumulatesWithoutSubscribers(t *testing.T) {
	t.Parallel()

	s, dev := openSession(t, testGeneration)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.EmitColor(colorFrame(1, 2, 3, 4), 1)
	dev.EmitDepth(depthFrame(1000), 2)

	if got := s.Stats().Pairs; got != 0 {
		t.Fatalf("got %d pairs without subscribers, want 0", got)
	}

	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.record)
	dev.EmitDepth(depthFrame(1000), 3)

	if got := rec.len(); got != 1 {
		t.Fatalf("got %d pairs, want 1", got)
	}

	unsubscribe()
	unsubscribe()
	dev.EmitColor(colorFrame(1, 2, 3, 4), 4)
	dev.EmitDepth(depthFrame(1000), 5)

	if got := rec.len(); got != 1 {
		t.Fatalf("got %d pairs after unsubscribe, want 1", got)
	}
}

func TestSessionPostStopTolerance(t *testing.T) {
	t.Parallel()

	s, dev := openSession(t, testGeneration)
	rec := &recorder{}
	s.Subscribe(rec.record)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.EmitColor(colorFrame(1, 2, 3, 4), 1)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	dev.EmitDepth(depthFrame(1000), 2)

	if got := rec.len(); got != 0 {
		t.Fatalf("got %d pairs after stop, want 0", got)
	}
	if got := s.Stats().Ignored; got != 1 {
		t.Fatalf("got %d ignored frames, want 1", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A callback already in flight when the device was released.
	s.onColor(colorFrame(1, 2, 3, 4), 3)
	s.onDepth(depthFrame(1000), 4)

	if got := rec.len(); got != 0 {
		t.Fatalf("got %d pairs after close, want 0", got)
	}
}

func TestSessionRestartDropsHalfPair(t *testing.T) {
	t.Parallel()

	s, dev := openSession(t, testGeneration)
	rec := &recorder{}
	s.Subscribe(rec.record)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.EmitColor(colorFrame(1, 2, 3, 4), 1)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	dev.EmitDepth(depthFrame(1000), 2)

	if got := rec.len(); got != 0 {
		t.Fatalf("got %d pairs, want 0", got)
	}
	if got := s.State(); got != StateStarted {
		t.Fatalf("got state %s, want %s", got, StateStarted)
	}
}

func TestSessionUseAfterClose(t *testing.T) {
	t.Parallel()

	s, _ := openSession(t, testGeneration)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: got %v, want nil", err)
	}

	if err := s.Start(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start: got %v, want ErrSessionClosed", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrContractViolation) {
		t.Errorf("Stop: got %v, want ErrContractViolation", err)
	}
	if _, err := s.Snapshot(0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Snapshot: got %v, want ErrSessionClosed", err)
	}
}

func TestSessionCallbackFailures(t *testing.T) {
	t.Parallel()

	s, dev := openSession(t, testGeneration)

	var mu sync.Mutex
	var calls int
	s.Subscribe(func(Pair) { panic("observer failed") })
	s.Subscribe(func(Pair) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dev.EmitColor(make([]byte, 3), 1)
	if got := s.Stats().CallbackErrors; got != 1 {
		t.Fatalf("got %d callback errors after short frame, want 1", got)
	}

	dev.EmitColor(colorFrame(1, 2, 3, 4), 2)
	dev.EmitDepth(depthFrame(1000), 3)

	if got := s.Stats().CallbackErrors; got != 2 {
		t.Fatalf("got %d callback errors after panic, want 2", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("got %d calls to healthy subscriber, want 1", calls)
	}
}

func TestSessionWithProducer(t *testing.T) {
	t.Parallel()

	d := newTestDriver(1)
	d.Interval = time.Millisecond
	r := NewRegistry(d, discardLogger())

	s, err := r.Open(Config{Generation: testGeneration, Pipeline: freenect2.PipelineCPU})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got := make(chan uint64, 1)
	s.Subscribe(func(p Pair) {
		select {
		case got <- p.Seq:
		default:
		}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case seq := <-got:
		if seq != 1 {
			t.Fatalf("got first seq %d, want 1", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pair delivered")
	}
}
