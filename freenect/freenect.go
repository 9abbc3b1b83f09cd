//go:build freenect

package freenect

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfreenect
#include <libfreenect/libfreenect.h>
#include <sys/time.h>

void depthCallbackGo(freenect_device *dev, void *depth, uint32_t timestamp);
void videoCallbackGo(freenect_device *dev, void *video, uint32_t timestamp);

static void depth_cb(freenect_device *dev, void *depth, uint32_t timestamp) {
	depthCallbackGo(dev, depth, timestamp);
}

static void video_cb(freenect_device *dev, void *video, uint32_t timestamp) {
	videoCallbackGo(dev, video, timestamp);
}

static void set_depth_callback(freenect_device *dev) {
	freenect_set_depth_callback(dev, depth_cb);
}

static void set_video_callback(freenect_device *dev) {
	freenect_set_video_callback(dev, video_cb);
}

static int process_events_timeout(freenect_context *ctx, long usec) {
	struct timeval tv;
	tv.tv_sec = usec / 1000000;
	tv.tv_usec = usec % 1000000;
	return freenect_process_events_timeout(ctx, &tv);
}
*/
import "C"

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Resolution int

const (
	ResolutionLow    = Resolution(C.FREENECT_RESOLUTION_LOW)
	ResolutionMedium = Resolution(C.FREENECT_RESOLUTION_MEDIUM)
	ResolutionHigh   = Resolution(C.FREENECT_RESOLUTION_HIGH)
)

type DepthFormat int

const (
	DepthFormat11Bit      = DepthFormat(C.FREENECT_DEPTH_11BIT)
	DepthFormatRegistered = DepthFormat(C.FREENECT_DEPTH_REGISTERED)
	DepthFormatMM         = DepthFormat(C.FREENECT_DEPTH_MM)
)

type VideoFormat int

const (
	VideoFormatRGB     = VideoFormat(C.FREENECT_VIDEO_RGB)
	VideoFormatIR8Bit  = VideoFormat(C.FREENECT_VIDEO_IR_8BIT)
	VideoFormatIR10Bit = VideoFormat(C.FREENECT_VIDEO_IR_10BIT)
)

type LEDColor int

const (
	LEDColorOff            = LEDColor(C.LED_OFF)
	LEDColorGreen          = LEDColor(C.LED_GREEN)
	LEDColorRed            = LEDColor(C.LED_RED)
	LEDColorYellow         = LEDColor(C.LED_YELLOW)
	LEDColorBlinkGreen     = LEDColor(C.LED_BLINK_GREEN)
	LEDColorBlinkRedYellow = LEDColor(C.LED_BLINK_RED_YELLOW)
)

var ledColors = map[string]LEDColor{
	"off":              LEDColorOff,
	"green":            LEDColorGreen,
	"red":              LEDColorRed,
	"yellow":           LEDColorYellow,
	"blink-green":      LEDColorBlinkGreen,
	"blink-red-yellow": LEDColorBlinkRedYellow,
}

type Flag int

const (
	FlagMirrorDepth = Flag(C.FREENECT_MIRROR_DEPTH)
	FlagMirrorVideo = Flag(C.FREENECT_MIRROR_VIDEO)
)

// DepthCallback receives a depth frame. depth is only valid during the call.
type DepthCallback func(device *Device, depth []uint16, timestamp uint32)

// VideoCallback receives a video frame. video is only valid during the call.
type VideoCallback func(device *Device, video []byte, timestamp uint32)

var (
	devicesMu sync.RWMutex
	devices   = map[*C.freenect_device]*Device{}
)

func lookupDevice(dev *C.freenect_device) *Device {
	devicesMu.RLock()
	defer devicesMu.RUnlock()

	return devices[dev]
}

type Context struct {
	ctx *C.freenect_context
}

// NewContext initializes libfreenect with the camera and motor subdevices.
func NewContext() (*Context, error) {
	var ctx *C.freenect_context
	if rc := C.freenect_init(&ctx, nil); rc < 0 {
		return nil, errors.Errorf("freenect_init failed (%d)", int(rc))
	}
	C.freenect_select_subdevices(ctx, C.freenect_device_flags(C.FREENECT_DEVICE_MOTOR|C.FREENECT_DEVICE_CAMERA))

	return &Context{ctx: ctx}, nil
}

// NumDevices returns the number of devices plugged in.
func (c *Context) NumDevices() int {
	return int(C.freenect_num_devices(c.ctx))
}

// OpenDevice opens the device at index.
func (c *Context) OpenDevice(index int) (*Device, error) {
	var dev *C.freenect_device
	if rc := C.freenect_open_device(c.ctx, &dev, C.int(index)); rc < 0 {
		return nil, errors.Errorf("could not open device %d (%d)", index, int(rc))
	}

	d := &Device{ctx: c, dev: dev}

	devicesMu.Lock()
	devices[dev] = d
	devicesMu.Unlock()

	return d, nil
}

// ProcessEvents handles pending USB events, waiting up to timeout for one. Frame callbacks run
// on the calling goroutine.
func (c *Context) ProcessEvents(timeout time.Duration) error {
	if rc := C.process_events_timeout(c.ctx, C.long(timeout.Microseconds())); rc < 0 {
		return errors.Errorf("could not process events (%d)", int(rc))
	}
	return nil
}

// Destroy shuts libfreenect down. Devices must be destroyed first.
func (c *Context) Destroy() error {
	if rc := C.freenect_shutdown(c.ctx); rc < 0 {
		return errors.Errorf("freenect_shutdown failed (%d)", int(rc))
	}
	return nil
}

type frameMode struct {
	width  int
	height int
	bytes  int
}

type Device struct {
	ctx *Context
	dev *C.freenect_device

	depthCallback DepthCallback
	videoCallback VideoCallback

	depthMode frameMode
	videoMode frameMode
}

func (d *Device) SetLED(color LEDColor) error {
	if rc := C.freenect_set_led(d.dev, C.freenect_led_options(color)); rc < 0 {
		return errors.Errorf("could not set led (%d)", int(rc))
	}
	return nil
}

func (d *Device) SetFlag(flag Flag, on bool) error {
	value := C.FREENECT_OFF
	if on {
		value = C.FREENECT_ON
	}
	if rc := C.freenect_set_flag(d.dev, C.freenect_flag(flag), C.freenect_flag_value(value)); rc < 0 {
		return errors.Errorf("could not set flag %d (%d)", int(flag), int(rc))
	}
	return nil
}

func (d *Device) SetDepthCallback(cb DepthCallback) {
	d.depthCallback = cb
	C.set_depth_callback(d.dev)
}

func (d *Device) SetVideoCallback(cb VideoCallback) {
	d.videoCallback = cb
	C.set_video_callback(d.dev)
}

// StartDepthStream starts delivering depth frames to the depth callback.
func (d *Device) StartDepthStream(res Resolution, format DepthFormat) error {
	mode := C.freenect_find_depth_mode(C.freenect_resolution(res), C.freenect_depth_format(format))
	if mode.is_valid == 0 {
		return errors.Errorf("unsupported depth mode (resolution %d, format %d)", int(res), int(format))
	}
	if rc := C.freenect_set_depth_mode(d.dev, mode); rc < 0 {
		return errors.Errorf("could not set depth mode (%d)", int(rc))
	}
	d.depthMode = frameMode{width: int(mode.width), height: int(mode.height), bytes: int(mode.bytes)}

	if rc := C.freenect_start_depth(d.dev); rc < 0 {
		return errors.Errorf("could not start depth stream (%d)", int(rc))
	}
	return nil
}

func (d *Device) StopDepthStream() error {
	if rc := C.freenect_stop_depth(d.dev); rc < 0 {
		return errors.Errorf("could not stop depth stream (%d)", int(rc))
	}
	return nil
}

// StartVideoStream starts delivering color or infrared frames to the video callback.
func (d *Device) StartVideoStream(res Resolution, format VideoFormat) error {
	mode := C.freenect_find_video_mode(C.freenect_resolution(res), C.freenect_video_format(format))
	if mode.is_valid == 0 {
		return errors.Errorf("unsupported video mode (resolution %d, format %d)", int(res), int(format))
	}
	if rc := C.freenect_set_video_mode(d.dev, mode); rc < 0 {
		return errors.Errorf("could not set video mode (%d)", int(rc))
	}
	d.videoMode = frameMode{width: int(mode.width), height: int(mode.height), bytes: int(mode.bytes)}

	if rc := C.freenect_start_video(d.dev); rc < 0 {
		return errors.Errorf("could not start video stream (%d)", int(rc))
	}
	return nil
}

func (d *Device) StopVideoStream() error {
	if rc := C.freenect_stop_video(d.dev); rc < 0 {
		return errors.Errorf("could not stop video stream (%d)", int(rc))
	}
	return nil
}

// Destroy closes the device.
func (d *Device) Destroy() error {
	devicesMu.Lock()
	delete(devices, d.dev)
	devicesMu.Unlock()

	if rc := C.freenect_close_device(d.dev); rc < 0 {
		return errors.Errorf("could not close device (%d)", int(rc))
	}
	return nil
}
