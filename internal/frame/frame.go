// Package frame copies image data out of SDK-owned capture buffers.
package frame

import (
	"errors"
	"fmt"
	"time"
)

// Fixed properties of the supported CLPE camera generation.
const (
	Width  = 1920
	Height = 1080

	// EncodingYUV422 is the interleaved UYVY layout the cameras deliver,
	// named the way the middleware's image encodings name it.
	EncodingYUV422 = "yuv422"

	// BytesPerPixel for EncodingYUV422.
	BytesPerPixel = 2

	// Size is the byte length of a full frame with no row padding.
	Size = Width * Height * BytesPerPixel

	// SDKBufferDepth is the number of subsequent deliveries an SDK frame
	// buffer stays valid for. After that the SDK reuses it.
	SDKBufferDepth = 16

	// DefaultFrameID is the coordinate frame stamped on images when the
	// caller does not set one.
	DefaultFrameID = "base_link"
)

// ErrEmptyBuffer is returned by CopyOut when the SDK hands over no data.
var ErrEmptyBuffer = errors.New("empty frame buffer")

// Timeval is the capture timestamp as delivered by the SDK (struct timeval).
type Timeval struct {
	Sec  int64
	Usec int64
}

// Time converts the timestamp to a time.Time in UTC.
func (tv Timeval) Time() time.Time {
	return time.Unix(tv.Sec, tv.Usec*int64(time.Microsecond)).UTC()
}

// TimevalFromTime is the inverse of Timeval.Time at microsecond precision.
func TimevalFromTime(t time.Time) Timeval {
	us := t.UnixMicro()
	return Timeval{Sec: us / 1e6, Usec: us % 1e6}
}

// Frame is an image owned by its holder. Data never aliases SDK memory.
type Frame struct {
	CameraID    int
	FrameID     string
	Data        []byte
	Width       int
	Height      int
	Step        int // bytes per row
	Encoding    string
	IsBigEndian bool
	Timestamp   time.Time
}

func (f *Frame) String() string {
	return fmt.Sprintf("cam=%d %dx%d step=%d %s bytes=%d t=%s",
		f.CameraID, f.Width, f.Height, f.Step, f.Encoding, len(f.Data), f.Timestamp.Format(time.RFC3339Nano))
}

// CopyOut copies buf into a newly allocated Frame. buf is only borrowed: the
// SDK may overwrite it once the caller returns control, so the copy happens
// synchronously and no reference to buf is kept.
//
// Step is derived as len(buf)/Height on the assumption that every row has the
// same length. Nothing checks that len(buf) is a multiple of Height.
func CopyOut(cameraID int, buf []byte, ts Timeval) (*Frame, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("camera %d: %w", cameraID, ErrEmptyBuffer)
	}

	data := make([]byte, len(buf))
	copy(data, buf)

	return &Frame{
		CameraID:  cameraID,
		FrameID:   DefaultFrameID,
		Data:      data,
		Width:     Width,
		Height:    Height,
		Step:      len(buf) / Height,
		Encoding:  EncodingYUV422,
		Timestamp: ts.Time(),
	}, nil
}
