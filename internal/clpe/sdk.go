// Package clpe owns the connection to the CLPE frame-grabber SDK: connect,
// stream lifecycle, calibration and single-frame reads, with the SDK's
// integer return codes mapped onto typed errors.
package clpe

import (
	"fmt"
	"strings"

	"github.com/banshee-data/clpe-bridge/internal/frame"
)

const (
	MIN_FRAME_RATE = 15 // fps, inclusive
	MAX_FRAME_RATE = 30 // fps, inclusive
	MAX_CAMERAS    = 4  // camera instances on one card
)

// StreamCallback is invoked by the SDK on its own thread for every delivered
// frame. buf is only valid until the callback returns. A non-zero return
// asks the SDK to stop delivering on that path.
type StreamCallback func(instance uint32, buf []byte, ts frame.Timeval) int

// SDK is the capability set of the vendor client. Every method returns the
// vendor's integer status, 0 on success. Implementations must allow
// ReadEeprom to be called from inside a StreamCallback.
type SDK interface {
	Connect(credential string) int
	ReadEeprom(cameraID int, out []byte) int
	// ReadFrameOnce returns an SDK-owned buffer that stays valid for
	// frame.SDKBufferDepth further deliveries.
	ReadFrameOnce(cameraID int) (buf []byte, ts frame.Timeval, code int)
	StartStream(cb StreamCallback, frameRate int, cameras CameraMask) int
	StopStream() int
}

// FrameRateSetter is implemented by SDKs that accept a rate change while
// streaming.
type FrameRateSetter interface {
	SetFrameRate(fps int) int
}

// CameraMask selects camera instances, bit i for camera i.
type CameraMask uint8

// AllCameras enables every instance on the card.
const AllCameras CameraMask = 1<<MAX_CAMERAS - 1

// MaskOf builds a mask from camera ids. Ids outside [0, MAX_CAMERAS) are
// an error.
func MaskOf(ids ...int) (CameraMask, error) {
	var m CameraMask
	for _, id := range ids {
		if id < 0 || id >= MAX_CAMERAS {
			return 0, fmt.Errorf("%w: %d", ErrInvalidCamera, id)
		}
		m |= 1 << id
	}
	return m, nil
}

// Has reports whether camera id is enabled.
func (m CameraMask) Has(id int) bool {
	return id >= 0 && id < MAX_CAMERAS && m&(1<<id) != 0
}

// IDs lists the enabled cameras in ascending order.
func (m CameraMask) IDs() []int {
	var ids []int
	for i := 0; i < MAX_CAMERAS; i++ {
		if m.Has(i) {
			ids = append(ids, i)
		}
	}
	return ids
}

func (m CameraMask) String() string {
	ids := m.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
