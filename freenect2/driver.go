// Package freenect2 describes the native Kinect v2 capture library as a set
// of small capabilities, and provides a cgo adapter over the freenect2c C
// shim when built with the freenect2 tag.
package freenect2

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned by Open when the binary was built without the
// native adapter.
var ErrUnavailable = errors.New("freenect2: native driver not built in (use -tags freenect2)")

// Frame geometry produced by libfreenect2. Every sample is 4 bytes.
const (
	ColorWidth  = 1920
	ColorHeight = 1080
	DepthWidth  = 512
	DepthHeight = 424

	// Registered depth is one row taller than the color image on each edge.
	BigDepthWidth  = 1920
	BigDepthHeight = 1082

	ColorFrameSize    = ColorWidth * ColorHeight * 4
	DepthFrameSize    = DepthWidth * DepthHeight * 4
	BigDepthFrameSize = BigDepthWidth * BigDepthHeight * 4
)

// FrameFunc receives one frame. data points into memory owned by the native
// library and is only valid until the function returns.
type FrameFunc func(data []byte, timestamp uint32)

// FramesFunc receives a color frame, its depth frame and the depth frame
// registered onto the color image in one call. The slices are only valid
// until the function returns.
type FramesFunc func(color, depth, bigDepth []byte)

// Driver creates native contexts.
type Driver interface {
	NewContext() (Context, error)
}

// Context is a native library context shared by every device it opens.
type Context interface {
	DeviceCount() int
	// OpenDevice returns a nil Device when no device exists at index.
	OpenDevice(index int, pipeline Pipeline) (Device, error)
	Close() error
}

// Device is one opened sensor. Callbacks run on a thread owned by the native
// library and are never invoked concurrently with each other.
type Device interface {
	SetColorCallback(FrameFunc)
	SetDepthCallback(FrameFunc)
	SetFramesCallback(FramesFunc)
	Start() error
	// Stop returns once the native library has stopped invoking callbacks.
	Stop() error
	Close() error
}

// Pipeline selects the backend libfreenect2 uses to decode depth packets.
type Pipeline int

const (
	PipelineDefault Pipeline = iota
	PipelineCPU
	PipelineOpenGL
	PipelineOpenCL
	PipelineCUDA
)

var pipelineNames = []string{
	PipelineDefault: "default",
	PipelineCPU:     "cpu",
	PipelineOpenGL:  "opengl",
	PipelineOpenCL:  "opencl",
	PipelineCUDA:    "cuda",
}

func (p Pipeline) String() string {
	if p < 0 || int(p) >= len(pipelineNames) {
		return fmt.Sprintf("Pipeline(%d)", int(p))
	}
	return pipelineNames[p]
}

func ParsePipeline(s string) (Pipeline, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PipelineDefault, nil
	}
	for p, name := range pipelineNames {
		if name == s {
			return Pipeline(p), nil
		}
	}
	return PipelineDefault, fmt.Errorf("unknown pipeline %q", s)
}
