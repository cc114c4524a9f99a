//go:build freenect2

package freenect2

/*
#cgo LDFLAGS: -lfreenect2c -lfreenect2
#include <stdint.h>

typedef struct freenect2c_context freenect2c_context;
typedef struct freenect2c_device freenect2c_device;

typedef void (*freenect2c_frame_callback)(void* user, unsigned char* data, uint32_t timestamp);
typedef void (*freenect2c_frames_callback)(void* user, unsigned char* color, unsigned char* depth, unsigned char* big_depth);

freenect2c_context* freenect2_context_create(void);
void freenect2_context_destroy(freenect2c_context* context);
int freenect2_context_get_device_count(freenect2c_context* context);

freenect2c_device* freenect2_device_create(freenect2c_context* context, int id, int pipeline);
void freenect2_device_destroy(freenect2c_device* device);
int freenect2_device_start(freenect2c_device* device);
int freenect2_device_stop(freenect2c_device* device);

void freenect2_device_set_color_frame_callback(freenect2c_device* device, freenect2c_frame_callback callback, void* user);
void freenect2_device_set_depth_frame_callback(freenect2c_device* device, freenect2c_frame_callback callback, void* user);
void freenect2_device_set_frames_callback(freenect2c_device* device, freenect2c_frames_callback callback, void* user);

extern void goColorFrame(void* user, unsigned char* data, uint32_t timestamp);
extern void goDepthFrame(void* user, unsigned char* data, uint32_t timestamp);
extern void goFrames(void* user, unsigned char* color, unsigned char* depth, unsigned char* big_depth);
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Devices are looked up by their C pointer, which the shim hands back to
// every callback as its user argument.
var (
	devicesMu sync.RWMutex
	devices   = make(map[*C.freenect2c_device]*device)
)

type nativeDriver struct{}

// Open returns the native driver.
func Open() (Driver, error) {
	return nativeDriver{}, nil
}

func (nativeDriver) NewContext() (Context, error) {
	ctx := C.freenect2_context_create()
	if ctx == nil {
		return nil, errors.New("could not create freenect2 context")
	}
	return &nativeContext{ctx: ctx}, nil
}

type nativeContext struct {
	mu  sync.Mutex
	ctx *C.freenect2c_context
}

func (c *nativeContext) DeviceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return 0
	}
	return int(C.freenect2_context_get_device_count(c.ctx))
}

func (c *nativeContext) OpenDevice(index int, pipeline Pipeline) (Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, errors.New("freenect2 context is closed")
	}

	dev := C.freenect2_device_create(c.ctx, C.int(index), C.int(pipeline))
	if dev == nil {
		return nil, nil
	}

	d := &device{dev: dev}

	devicesMu.Lock()
	devices[dev] = d
	devicesMu.Unlock()

	return d, nil
}

func (c *nativeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return errors.New("freenect2 context already closed")
	}
	C.freenect2_context_destroy(c.ctx)
	c.ctx = nil
	return nil
}

type device struct {
	dev *C.freenect2c_device

	callbacksMu sync.RWMutex
	color       FrameFunc
	depth       FrameFunc
	frames      FramesFunc
}

func (d *device) user() unsafe.Pointer {
	return unsafe.Pointer(d.dev)
}

func (d *device) SetColorCallback(fn FrameFunc) {
	d.callbacksMu.Lock()
	d.color = fn
	d.callbacksMu.Unlock()

	C.freenect2_device_set_color_frame_callback(d.dev, C.freenect2c_frame_callback(C.goColorFrame), d.user())
}

func (d *device) SetDepthCallback(fn FrameFunc) {
	d.callbacksMu.Lock()
	d.depth = fn
	d.callbacksMu.Unlock()

	C.freenect2_device_set_depth_frame_callback(d.dev, C.freenect2c_frame_callback(C.goDepthFrame), d.user())
}

func (d *device) SetFramesCallback(fn FramesFunc) {
	d.callbacksMu.Lock()
	d.frames = fn
	d.callbacksMu.Unlock()

	C.freenect2_device_set_frames_callback(d.dev, C.freenect2c_frames_callback(C.goFrames), d.user())
}

func (d *device) Start() error {
	if rc := C.freenect2_device_start(d.dev); rc != 0 {
		return fmt.Errorf("could not start freenect2 device: code %d", int(rc))
	}
	return nil
}

func (d *device) Stop() error {
	if rc := C.freenect2_device_stop(d.dev); rc != 0 {
		return fmt.Errorf("could not stop freenect2 device: code %d", int(rc))
	}
	return nil
}

func (d *device) Close() error {
	devicesMu.Lock()
	delete(devices, d.dev)
	devicesMu.Unlock()

	C.freenect2_device_destroy(d.dev)
	return nil
}

func lookupDevice(user unsafe.Pointer) *device {
	devicesMu.RLock()
	defer devicesMu.RUnlock()

	return devices[(*C.freenect2c_device)(user)]
}
