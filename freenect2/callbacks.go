//go:build freenect2

package freenect2

/*
#include <stdint.h>
*/
import "C"

import "unsafe"

func nativeBytes(p *C.uchar, n int) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

//export goColorFrame
func goColorFrame(user unsafe.Pointer, data *C.uchar, timestamp C.uint32_t) {
	d := lookupDevice(user)
	if d == nil {
		return
	}

	d.callbacksMu.RLock()
	fn := d.color
	d.callbacksMu.RUnlock()

	if fn != nil {
		fn(nativeBytes(data, ColorFrameSize), uint32(timestamp))
	}
}

//export goDepthFrame
func goDepthFrame(user unsafe.Pointer, data *C.uchar, timestamp C.uint32_t) {
	d := lookupDevice(user)
	if d == nil {
		return
	}

	d.callbacksMu.RLock()
	fn := d.depth
	d.callbacksMu.RUnlock()

	if fn != nil {
		fn(nativeBytes(data, DepthFrameSize), uint32(timestamp))
	}
}

//export goFrames
func goFrames(user unsafe.Pointer, color, depth, bigDepth *C.uchar) {
	d := lookupDevice(user)
	if d == nil {
		return
	}

	d.callbacksMu.RLock()
	fn := d.frames
	d.callbacksMu.RUnlock()

	if fn != nil {
		fn(nativeBytes(color, ColorFrameSize), nativeBytes(depth, DepthFrameSize), nativeBytes(bigDepth, BigDepthFrameSize))
	}
}
