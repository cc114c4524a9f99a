// Package simdriver is an in-process stand-in for the native capture library.
// Devices produce synthetic color and depth frames from their own goroutine,
// which plays the role of the thread the native library would call back on.
package simdriver

import (
	"encoding/binary"
	"errors"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"essaim.dev/freenect2/freenect2"
)

var (
	ErrContextClosed = errors.New("simdriver: context already destroyed")
	ErrDeviceClosed  = errors.New("simdriver: device closed")
)

// Driver implements freenect2.Driver. Fields must be set before the first
// call to NewContext.
type Driver struct {
	Devices   int
	Interval  time.Duration
	ColorSize image.Point
	DepthSize image.Point
	// Combined makes started devices deliver through the frames callback
	// instead of separate color and depth callbacks.
	Combined bool

	created   atomic.Int64
	destroyed atomic.Int64
}

// New returns a driver exposing the given number of devices with Kinect v2
// frame geometry at roughly 30 frames per second.
func New(devices int) *Driver {
	return &Driver{
		Devices:   devices,
		Interval:  33 * time.Millisecond,
		ColorSize: image.Pt(freenect2.ColorWidth, freenect2.ColorHeight),
		DepthSize: image.Pt(freenect2.DepthWidth, freenect2.DepthHeight),
	}
}

func (d *Driver) NewContext() (freenect2.Context, error) {
	d.created.Add(1)
	return &Context{driver: d}, nil
}

func (d *Driver) ContextsCreated() int64 {
	return d.created.Load()
}

func (d *Driver) ContextsDestroyed() int64 {
	return d.destroyed.Load()
}

type Context struct {
	driver *Driver

	mu     sync.Mutex
	closed bool
}

func (c *Context) DeviceCount() int {
	return c.driver.Devices
}

func (c *Context) OpenDevice(index int, pipeline freenect2.Pipeline) (freenect2.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContextClosed
	}
	if index < 0 || index >= c.driver.Devices {
		return nil, nil
	}

	return newDevice(index, pipeline, c.driver), nil
}

// Close destroys the context. Destroying it twice is an error so tests can
// catch double teardown.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	c.closed = true
	c.driver.destroyed.Add(1)
	return nil
}

type Device struct {
	Index    int
	Pipeline freenect2.Pipeline

	interval  time.Duration
	colorSize image.Point
	depthSize image.Point
	combined  bool

	mu       sync.Mutex
	color    freenect2.FrameFunc
	depth    freenect2.FrameFunc
	frames   freenect2.FramesFunc
	stop     chan struct{}
	done     chan struct{}
	closed   bool
	produced atomic.Uint64

	// emitMu serialises callback delivery the way the native library does.
	emitMu   sync.Mutex
	colorBuf []byte
	depthBuf []byte
	bigBuf   []byte
}

func newDevice(index int, pipeline freenect2.Pipeline, d *Driver) *Device {
	return &Device{
		Index:     index,
		Pipeline:  pipeline,
		interval:  d.Interval,
		colorSize: d.ColorSize,
		depthSize: d.DepthSize,
		combined:  d.Combined,
		colorBuf:  make([]byte, d.ColorSize.X*d.ColorSize.Y*4),
		depthBuf:  make([]byte, d.DepthSize.X*d.DepthSize.Y*4),
		bigBuf:    make([]byte, d.ColorSize.X*(d.ColorSize.Y+2)*4),
	}
}

func (d *Device) SetColorCallback(fn freenect2.FrameFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.color = fn
}

func (d *Device) SetDepthCallback(fn freenect2.FrameFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.depth = fn
}

func (d *Device) SetFramesCallback(fn freenect2.FramesFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.frames = fn
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.stop != nil {
		return nil
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)

	return nil
}

// Stop waits for the producer goroutine to exit, so no callback runs after
// it returns.
func (d *Device) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done

	return nil
}

func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

// Produced reports how many frame sets the producer goroutine has delivered.
func (d *Device) Produced() uint64 {
	return d.produced.Load()
}

func (d *Device) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seq++
			d.produce(seq)
			d.produced.Add(1)
		}
	}
}

func (d *Device) produce(seq uint32) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	fillColor(d.colorBuf, d.colorSize, seq)
	fillDepth(d.depthBuf, d.depthSize, seq)

	if d.combined {
		d.deliverFrames(d.colorBuf, d.depthBuf, d.bigBuf)
		return
	}
	d.deliverColor(d.colorBuf, seq)
	d.deliverDepth(d.depthBuf, seq)
}

func (d *Device) callbacks() (freenect2.FrameFunc, freenect2.FrameFunc, freenect2.FramesFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.color, d.depth, d.frames
}

func (d *Device) deliverColor(data []byte, timestamp uint32) {
	if fn, _, _ := d.callbacks(); fn != nil {
		fn(data, timestamp)
	}
}

func (d *Device) deliverDepth(data []byte, timestamp uint32) {
	if _, fn, _ := d.callbacks(); fn != nil {
		fn(data, timestamp)
	}
}

func (d *Device) deliverFrames(color, depth, bigDepth []byte) {
	if _, _, fn := d.callbacks(); fn != nil {
		fn(color, depth, bigDepth)
	}
}

// EmitColor delivers data through the color callback on the calling
// goroutine, whether or not the device is started.
func (d *Device) EmitColor(data []byte, timestamp uint32) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.deliverColor(data, timestamp)
}

func (d *Device) EmitDepth(data []byte, timestamp uint32) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.deliverDepth(data, timestamp)
}

func (d *Device) EmitFrames(color, depth, bigDepth []byte) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.deliverFrames(color, depth, bigDepth)
}

// fillColor draws a diagonal gradient that scrolls with seq, in BGRA order.
func fillColor(buf []byte, size image.Point, seq uint32) {
	for y := 0; y < size.Y; y++ {
		row := buf[y*size.X*4 : (y+1)*size.X*4]
		for x := 0; x < size.X; x++ {
			i := x * 4
			row[i] = byte(x + int(seq))
			row[i+1] = byte(y)
			row[i+2] = byte((x + y) / 2)
			row[i+3] = 0xff
		}
	}
}

// fillDepth draws a plane sweeping between 0.5m and 5m, leaving a band with
// no reading (zero) the way the sensor does near its edges.
func fillDepth(buf []byte, size image.Point, seq uint32) {
	phase := float64(seq%120) / 120
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			i := (y*size.X + x) * 4
			var mm float32
			if x >= size.X/32 {
				t := math.Mod(float64(x)/float64(size.X)+phase, 1)
				mm = float32(500 + 4500*t)
			}
			binary.LittleEndian.PutUint32(buf[i:], math.Float32bits(mm))
		}
	}
}
