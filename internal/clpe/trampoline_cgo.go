//go:build clpe && cgo

package clpe

// #include "clpe_shim.h"
import "C"

import "sync/atomic"

// activeCallback is the single process-wide slot the vendor callback is
// routed through. It is set by Hardware.StartStream and cleared by
// Hardware.StopStream.
var activeCallback atomic.Pointer[StreamCallback]

//export clpeBridgeOnFrame
func clpeBridgeOnFrame(inst C.uint, buffer *C.uchar, size C.uint, frameUS *C.struct_timeval) C.int {
	cb := activeCallback.Load()
	if cb == nil {
		return 1
	}
	return C.int((*cb)(uint32(inst), cBytes(buffer, size), timevalOf(frameUS)))
}
