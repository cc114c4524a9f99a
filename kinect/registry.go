// Package kinect binds capture devices to frame pairing. A Registry shares
// one native context between sessions; a Session turns the device's
// callbacks into paired color and depth frames for its subscribers.
package kinect

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/pixel"
)

// Config selects and configures the device a Session captures from.
type Config struct {
	Generation  Generation
	DeviceIndex int
	Pipeline    freenect2.Pipeline
	// MaxDepth defaults to the generation's limit when zero.
	MaxDepth float32
	// Palette defaults to pixel.Grayscale when nil.
	Palette color.Palette
	Logger  *slog.Logger
}

func (c Config) withDefaults(logger *slog.Logger) Config {
	if c.Generation.Name == "" && !c.Generation.valid() {
		c.Generation = Freenect2
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = c.Generation.MaxDepth
	}
	if c.Palette == nil {
		c.Palette = pixel.Grayscale
	}
	if c.Logger == nil {
		c.Logger = logger
	}
	return c
}

// Registry owns the native context. The context is created when the first
// session opens and destroyed when the last one closes.
type Registry struct {
	driver freenect2.Driver
	logger *slog.Logger

	mu   sync.Mutex
	ctx  freenect2.Context
	refs int
}

func NewRegistry(driver freenect2.Driver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		driver: driver,
		logger: logger,
	}
}

func (r *Registry) acquire() (freenect2.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		ctx, err := r.driver.NewContext()
		if err != nil {
			return nil, fmt.Errorf("could not create native context: %w", err)
		}
		r.ctx = ctx
		r.logger.Debug("native context created")
	}
	r.refs++

	return r.ctx, nil
}

func (r *Registry) release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 {
		return nil
	}
	r.refs--
	if r.refs > 0 {
		return nil
	}

	ctx := r.ctx
	r.ctx = nil
	if err := ctx.Close(); err != nil {
		return fmt.Errorf("could not destroy native context: %w", err)
	}
	r.logger.Debug("native context destroyed")

	return nil
}

// Refs returns the number of live references on the native context.
func (r *Registry) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.refs
}

// DeviceCount reports how many devices the native library can see.
func (r *Registry) DeviceCount() (int, error) {
	ctx, err := r.acquire()
	if err != nil {
		return 0, err
	}
	n := ctx.DeviceCount()

	return n, r.release()
}

// Open creates a session bound to the device at cfg.DeviceIndex. The session
// holds a reference on the native context until it is closed.
func (r *Registry) Open(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults(r.logger)
	if !cfg.Generation.valid() {
		return nil, fmt.Errorf("%w: generation %q has no frame geometry", ErrContractViolation, cfg.Generation.Name)
	}
	if cfg.DeviceIndex < 0 {
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, cfg.DeviceIndex)
	}

	ctx, err := r.acquire()
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Session, error) {
		return nil, errors.Join(err, r.release())
	}

	if n := ctx.DeviceCount(); cfg.DeviceIndex >= n {
		return fail(fmt.Errorf("%w: index %d, %d connected", ErrDeviceNotFound, cfg.DeviceIndex, n))
	}

	device, err := ctx.OpenDevice(cfg.DeviceIndex, cfg.Pipeline)
	if err != nil {
		return fail(fmt.Errorf("could not open device %d: %w", cfg.DeviceIndex, err))
	}
	if device == nil {
		return fail(fmt.Errorf("%w: index %d", ErrDeviceNotFound, cfg.DeviceIndex))
	}

	return newSession(r, device, cfg), nil
}
