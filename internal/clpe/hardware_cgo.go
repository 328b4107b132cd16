//go:build clpe && cgo

package clpe

/*
#cgo LDFLAGS: -lclpe_shim -lClpeClientApi -lstdc++
#include <stdlib.h>
#include "clpe_shim.h"

extern int clpeBridgeOnFrame(unsigned int inst, unsigned char *buffer,
                             unsigned int size, struct timeval *frame_us);
*/
import "C"

import (
	"unsafe"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/frame"
)

// Codes the binding returns before reaching the vendor library.
const (
	HW_BUFFER_TOO_SMALL  = -100
	HW_ALREADY_STREAMING = -101
)

// Hardware is the SDK backed by the vendor library. The vendor stream
// callback has no user-data argument, so at most one Hardware may stream
// per process.
type Hardware struct{}

// HardwareAvailable reports whether this binary was built with the vendor
// binding.
const HardwareAvailable = true

// NewHardwareClient returns a Client bound to the vendor library.
func NewHardwareClient(opts ...Option) (ClientInterface, error) {
	return NewClient(&Hardware{}, opts...), nil
}

func (h *Hardware) Connect(credential string) int {
	cs := C.CString(credential)
	defer C.free(unsafe.Pointer(cs))
	return int(C.clpe_shim_connect(cs))
}

func (h *Hardware) ReadEeprom(cameraID int, out []byte) int {
	if len(out) < eeprom.RecordSize {
		return HW_BUFFER_TOO_SMALL
	}
	return int(C.clpe_shim_get_eeprom(C.int(cameraID), (*C.uchar)(unsafe.Pointer(&out[0]))))
}

func (h *Hardware) ReadFrameOnce(cameraID int) ([]byte, frame.Timeval, int) {
	var (
		buf  *C.uchar
		size C.uint
		tv   C.struct_timeval
	)
	code := int(C.clpe_shim_get_frame_one_cam(C.int(cameraID), &buf, &size, &tv))
	if code != 0 {
		return nil, frame.Timeval{}, code
	}
	return cBytes(buf, size), timevalOf(&tv), 0
}

func (h *Hardware) StartStream(cb StreamCallback, frameRate int, cameras CameraMask) int {
	if !activeCallback.CompareAndSwap(nil, &cb) {
		return HW_ALREADY_STREAMING
	}
	code := int(C.clpe_shim_start_stream(
		C.clpe_shim_frame_cb(C.clpeBridgeOnFrame),
		C.int(frameRate),
		cBool(cameras.Has(0)), cBool(cameras.Has(1)),
		cBool(cameras.Has(2)), cBool(cameras.Has(3)),
		0,
	))
	if code != 0 {
		activeCallback.Store(nil)
	}
	return code
}

func (h *Hardware) StopStream() int {
	code := int(C.clpe_shim_stop_stream())
	if code == 0 {
		activeCallback.Store(nil)
	}
	return code
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func cBytes(buf *C.uchar, size C.uint) []byte {
	if buf == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
}

func timevalOf(tv *C.struct_timeval) frame.Timeval {
	if tv == nil {
		return frame.Timeval{}
	}
	return frame.Timeval{Sec: int64(tv.tv_sec), Usec: int64(tv.tv_usec)}
}
