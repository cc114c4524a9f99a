package kinect

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"essaim.dev/freenect2/frame"
	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/pixel"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Pair is one color frame and the depth frame completing it. The images are
// the session's own buffers: they are only valid during the subscriber call
// and must not be modified. Use Clone to keep them.
type Pair struct {
	Seq            uint64
	Color          *pixel.RGB
	ColorTimestamp uint32
	Depth          *image.Paletted
	DepthTimestamp uint32
	MaxDepth       float32
}

func (p Pair) Clone() Pair {
	p.Color = p.Color.Clone()
	p.Depth = pixel.ClonePaletted(p.Depth)
	return p
}

type Stats struct {
	ID             string
	ColorFrames    uint64
	DepthFrames    uint64
	Pairs          uint64
	Ignored        uint64
	CallbackErrors uint64
}

// Session captures from one device. Subscribers are called synchronously on
// the device's callback thread and should hand frames off quickly.
type Session struct {
	id       uuid.UUID
	index    int
	gen      Generation
	maxDepth float32
	logger   *slog.Logger
	registry *Registry

	mu     sync.Mutex
	state  State
	device freenect2.Device

	// running gates the callbacks: frames arriving while it is false are
	// counted and dropped.
	running atomic.Bool

	buffer  *frame.Buffer
	pairing frame.State

	subsMu  sync.RWMutex
	subs    map[uint64]func(Pair)
	nextSub uint64

	combinedSeq    uint32
	seq            atomic.Uint64
	colorFrames    atomic.Uint64
	depthFrames    atomic.Uint64
	ignored        atomic.Uint64
	callbackErrors atomic.Uint64
}

func newSession(r *Registry, device freenect2.Device, cfg Config) *Session {
	id := uuid.New()
	s := &Session{
		id:       id,
		index:    cfg.DeviceIndex,
		gen:      cfg.Generation,
		maxDepth: cfg.MaxDepth,
		logger:   cfg.Logger.With("session", id.String(), "device", cfg.DeviceIndex),
		registry: r,
		device:   device,
		buffer:   frame.NewBuffer(cfg.Generation.ColorSize, cfg.Generation.DepthSize, cfg.Palette, cfg.MaxDepth),
		subs:     make(map[uint64]func(Pair)),
	}

	if cfg.Generation.Combined {
		device.SetFramesCallback(s.onFrames)
	} else {
		device.SetColorCallback(s.onColor)
		device.SetDepthCallback(s.onDepth)
	}

	s.logger.Info("session opened",
		"generation", cfg.Generation.Name,
		"pipeline", cfg.Pipeline.String(),
		"max_depth", cfg.MaxDepth)

	return s
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) Generation() Generation {
	return s.gen
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Start begins capture. Callbacks may fire on the native thread before Start
// returns. Starting a started session does nothing.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateStarted:
		return nil
	}

	// A half pair left over from before a stop must not complete with a
	// frame from the new run.
	s.pairing.Reset()
	s.running.Store(true)
	if err := s.device.Start(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("could not start device %d: %w", s.index, err)
	}
	s.state = StateStarted
	s.logger.Info("capture started")

	return nil
}

// Stop ends capture. Frames the native layer delivers after Stop are
// dropped. Stopping a session that is not started does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateStarted:
	default:
		return nil
	}

	s.running.Store(false)
	s.state = StateStopped
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("could not stop device %d: %w", s.index, err)
	}
	s.logger.Info("capture stopped")

	return nil
}

// Close releases the device and the session's reference on the native
// context. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	var errs []error
	s.running.Store(false)
	if s.state == StateStarted {
		if err := s.device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("could not stop device %d: %w", s.index, err))
		}
	}

	s.device.SetColorCallback(nil)
	s.device.SetDepthCallback(nil)
	s.device.SetFramesCallback(nil)
	if err := s.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("could not close device %d: %w", s.index, err))
	}
	s.device = nil
	s.state = StateClosed
	s.pairing.Reset()

	if err := s.registry.release(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("session closed")

	return errors.Join(errs...)
}

// Subscribe registers fn to receive every completed pair. Pairs are only
// reported while at least one subscriber is registered.
func (s *Session) Subscribe(fn func(Pair)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()

			delete(s.subs, id)
		})
	}
}

func (s *Session) subscribers() []func(Pair) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	fns := make([]func(Pair), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

// Snapshot returns a private copy of the latest frame of modality m.
func (s *Session) Snapshot(m frame.Modality) (image.Image, error) {
	if s.State() == StateClosed {
		return nil, ErrSessionClosed
	}
	img, err := s.buffer.Snapshot(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
	}
	return img, nil
}

func (s *Session) Stats() Stats {
	return Stats{
		ID:             s.id.String(),
		ColorFrames:    s.colorFrames.Load(),
		DepthFrames:    s.depthFrames.Load(),
		Pairs:          s.seq.Load(),
		Ignored:        s.ignored.Load(),
		CallbackErrors: s.callbackErrors.Load(),
	}
}

func (s *Session) onColor(data []byte, timestamp uint32) {
	s.receive(frame.Color, data, timestamp)
}

func (s *Session) onDepth(data []byte, timestamp uint32) {
	s.receive(frame.Depth, data, timestamp)
}

// onFrames handles devices with a single callback. They carry no timestamp,
// so both frames are stamped with a delivery counter. The registered depth
// plane is not used.
func (s *Session) onFrames(color, depth, _ []byte) {
	s.combinedSeq++
	s.receive(frame.Color, color, s.combinedSeq)
	s.receive(frame.Depth, depth, s.combinedSeq)
}

func (s *Session) receive(m frame.Modality, data []byte, timestamp uint32) {
	defer s.recoverCallback("frame callback")

	if !s.running.Load() {
		s.ignored.Add(1)
		return
	}

	if err := s.buffer.Write(m, data, timestamp); err != nil {
		s.callbackErrors.Add(1)
		s.logger.Warn("could not store frame", "modality", m.String(), "error", err)
		return
	}

	switch m {
	case frame.Color:
		s.colorFrames.Add(1)
	case frame.Depth:
		s.depthFrames.Add(1)
	}

	subs := s.subscribers()
	ready, err := s.pairing.Update(m, len(subs) > 0)
	if err != nil {
		s.callbackErrors.Add(1)
		s.logger.Warn("could not update pairing", "modality", m.String(), "error", err)
		return
	}
	if ready {
		s.emit(subs)
	}
}

func (s *Session) emit(subs []func(Pair)) {
	seq := s.seq.Add(1)
	s.buffer.View(func(f frame.Frames) {
		p := Pair{
			Seq:            seq,
			Color:          f.Color,
			ColorTimestamp: f.ColorTimestamp,
			Depth:          f.Depth,
			DepthTimestamp: f.DepthTimestamp,
			MaxDepth:       s.maxDepth,
		}
		for _, fn := range subs {
			s.notify(fn, p)
		}
	})
}

func (s *Session) notify(fn func(Pair), p Pair) {
	defer s.recoverCallback("subscriber")
	fn(p)
}

func (s *Session) recoverCallback(where string) {
	if r := recover(); r != nil {
		s.callbackErrors.Add(1)
		s.logger.Error("recovered panic in "+where, "panic", r, "stack", string(debug.Stack()))
	}
}
