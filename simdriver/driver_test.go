package simdriver

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"essaim.dev/freenect2/freenect2"
)

func smallDriver(devices int) *Driver {
	d := New(devices)
	d.Interval = time.Millisecond
	d.ColorSize = image.Pt(4, 2)
	d.DepthSize = image.Pt(2, 2)
	return d
}

func TestContextLifecycle(t *testing.T) {
	t.Parallel()

	d := smallDriver(2)
	ctx, err := d.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	if got := ctx.DeviceCount(); got != 2 {
		t.Fatalf("got %d devices, want 2", got)
	}

	dev, err := ctx.OpenDevice(5, freenect2.PipelineCPU)
	if err != nil || dev != nil {
		t.Fatalf("OpenDevice(5): got %v, %v, want nil, nil", dev, err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ctx.Close(); !errors.Is(err, ErrContextClosed) {
		t.Fatalf("second Close: got %v, want ErrContextClosed", err)
	}
	if got := d.ContextsDestroyed(); got != 1 {
		t.Fatalf("got %d destroyed contexts, want 1", got)
	}
}

func TestDeviceDeliversUntilStopped(t *testing.T) {
	t.Parallel()

	d := smallDriver(1)
	ctx, _ := d.NewContext()
	dev, err := ctx.OpenDevice(0, freenect2.PipelineDefault)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}

	var colors, depths atomic.Int64
	dev.SetColorCallback(func(data []byte, _ uint32) {
		if len(data) != 4*2*4 {
			t.Errorf("got %d color bytes, want %d", len(data), 4*2*4)
		}
		colors.Add(1)
	})
	dev.SetDepthCallback(func(data []byte, _ uint32) {
		depths.Add(1)
	})

	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for depths.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := dev.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	after := colors.Load()
	time.Sleep(10 * time.Millisecond)

	if after < 3 {
		t.Fatalf("got %d color frames, want at least 3", after)
	}
	if got := colors.Load(); got != after {
		t.Fatalf("callbacks continued after Stop: %d -> %d", after, got)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dev.Start(); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("Start after Close: got %v, want ErrDeviceClosed", err)
	}
}

func TestCombinedDelivery(t *testing.T) {
	t.Parallel()

	d := smallDriver(1)
	d.Combined = true
	ctx, _ := d.NewContext()
	dev, _ := ctx.OpenDevice(0, freenect2.PipelineDefault)

	got := make(chan int, 1)
	dev.SetFramesCallback(func(color, depth, bigDepth []byte) {
		select {
		case got <- len(color) + len(depth):
		default:
		}
	})

	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer dev.Close()

	select {
	case n := <-got:
		if want := 4*2*4 + 2*2*4; n != want {
			t.Fatalf("got %d bytes, want %d", n, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no combined frame delivered")
	}
}
