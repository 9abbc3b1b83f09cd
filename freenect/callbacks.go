//go:build freenect

package freenect

// #include <libfreenect/libfreenect.h>
import "C"

import "unsafe"

//export depthCallbackGo
func depthCallbackGo(dev *C.freenect_device, depth unsafe.Pointer, timestamp C.uint32_t) {
	d := lookupDevice(dev)
	if d == nil || d.depthCallback == nil {
		return
	}
	n := d.depthMode.bytes / 2
	d.depthCallback(d, unsafe.Slice((*uint16)(depth), n), uint32(timestamp))
}

//export videoCallbackGo
func videoCallbackGo(dev *C.freenect_device, video unsafe.Pointer, timestamp C.uint32_t) {
	d := lookupDevice(dev)
	if d == nil || d.videoCallback == nil {
		return
	}
	d.videoCallback(d, unsafe.Slice((*byte)(video), d.videoMode.bytes), uint32(timestamp))
}
