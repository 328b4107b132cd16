package clpe

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/monitoring"
)

// Client manages the lifecycle of one CLPE connection. It is generic over the
// SDK so the hardware binding and the Simulator share the same code path.
//
// Connect, StartStream, Stop and SetFrameRate are control-thread operations
// and are serialised. ReadCalibration, CameraInfo, State and FrameRate take
// no lock and are safe to call from inside a StreamCallback.
type Client[T SDK] struct {
	sdk T

	controlMu sync.Mutex
	state     atomic.Int32
	fps       atomic.Int32
	session   atomic.Pointer[uuid.UUID]
	cameras   CameraMask

	frameID func(cameraID int) string
}

// ClientInterface is the surface the bridge binary and the auditor use.
type ClientInterface interface {
	Connect(credential string) error
	StartStream(fps int, cb StreamCallback) error
	Stop() error
	ReadCalibration(cameraID int) (eeprom.Record, error)
	ReadFrame(cameraID int) (*frame.Frame, error)
	CameraInfo(cameraID int) (calibration.CameraInfo, error)
	SetFrameRate(fps int) error
	FrameRate() int
	State() State
	SessionID() string
	Cameras() []int
	AttachAdminRoutes(mux *http.ServeMux)
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	cameras CameraMask
	frameID func(int) string
}

// WithCameras limits the stream to the given camera ids. The default is
// every camera on the card.
func WithCameras(m CameraMask) Option {
	return func(o *clientOptions) { o.cameras = m }
}

// WithFrameID sets the frame id stamped on camera-info messages.
func WithFrameID(f func(cameraID int) string) Option {
	return func(o *clientOptions) { o.frameID = f }
}

// NewClient returns a disconnected Client backed by sdk.
func NewClient[T SDK](sdk T, opts ...Option) *Client[T] {
	o := clientOptions{
		cameras: AllCameras,
		frameID: func(int) string { return frame.DefaultFrameID },
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client[T]{
		sdk:     sdk,
		cameras: o.cameras,
		frameID: o.frameID,
	}
	c.fps.Store(MAX_FRAME_RATE)
	return c
}

// State returns the current lifecycle state.
func (c *Client[T]) State() State {
	return State(c.state.Load())
}

// FrameRate returns the frame rate the stream was started or last updated
// with.
func (c *Client[T]) FrameRate() int {
	return int(c.fps.Load())
}

// SessionID identifies the current or most recent stream session, empty
// before the first StartStream.
func (c *Client[T]) SessionID() string {
	if id := c.session.Load(); id != nil {
		return id.String()
	}
	return ""
}

// Cameras returns the enabled camera ids.
func (c *Client[T]) Cameras() []int {
	return c.cameras.IDs()
}

// SDK returns the underlying SDK, for debug routes and tests.
func (c *Client[T]) SDK() T {
	return c.sdk
}

func (c *Client[T]) fail() {
	c.state.Store(int32(StateFailed))
}

// checkUsable rejects calls on a failed or never-connected client.
func (c *Client[T]) checkUsable() error {
	switch c.State() {
	case StateFailed:
		return ErrFailed
	case StateDisconnected:
		return fmt.Errorf("%w: not connected", ErrInvalidState)
	}
	return nil
}

func checkFrameRate(fps int) error {
	if fps < MIN_FRAME_RATE || fps > MAX_FRAME_RATE {
		return fmt.Errorf("%w: got %d", ErrFrameRateOutOfRange, fps)
	}
	return nil
}

// Connect opens the SDK connection. A non-zero vendor code is unrecoverable
// and leaves the client in StateFailed.
func (c *Client[T]) Connect(credential string) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	switch s := c.State(); s {
	case StateDisconnected:
	case StateFailed:
		return ErrFailed
	default:
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, s)
	}

	c.state.Store(int32(StateConnecting))
	if err := sdkError(DomainConnection, "Connect", c.sdk.Connect(credential)); err != nil {
		c.fail()
		return err
	}
	monitoring.Logf("clpe: connected, cameras %s", c.cameras)
	return nil
}

// StartStream starts frame delivery at fps, calling cb on the SDK thread for
// every frame. fps is checked before the SDK is touched.
func (c *Client[T]) StartStream(fps int, cb StreamCallback) error {
	if err := checkFrameRate(fps); err != nil {
		return err
	}
	if cb == nil {
		return ErrNilCallback
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	switch s := c.State(); s {
	case StateConnecting:
	case StateFailed:
		return ErrFailed
	default:
		return fmt.Errorf("%w: start stream while %s", ErrInvalidState, s)
	}

	// Publish the rate before the first callback can read it.
	prev := c.fps.Swap(int32(fps))
	if err := sdkError(DomainStream, "StartStream", c.sdk.StartStream(cb, fps, c.cameras)); err != nil {
		c.fps.Store(prev)
		c.fail()
		return err
	}

	id := uuid.New()
	c.session.Store(&id)
	c.state.Store(int32(StateStreaming))
	monitoring.Logf("clpe: streaming at %d fps, session %s", fps, id)
	return nil
}

// Stop halts frame delivery and returns the client to the stream-ready
// state. Calling Stop when not streaming is a no-op. Stop must not be
// called from inside the StreamCallback.
func (c *Client[T]) Stop() error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if c.State() != StateStreaming {
		return nil
	}
	if err := sdkError(DomainStream, "StopStream", c.sdk.StopStream()); err != nil {
		c.fail()
		return err
	}
	c.state.Store(int32(StateConnecting))
	monitoring.Logf("clpe: stream stopped, session %s", c.SessionID())
	return nil
}

// SetFrameRate updates the frame rate. While streaming the new rate is
// pushed to the SDK when it implements FrameRateSetter; otherwise it takes
// effect on the next StartStream. A rejected update leaves the rate
// unchanged.
func (c *Client[T]) SetFrameRate(fps int) error {
	if err := checkFrameRate(fps); err != nil {
		return err
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if c.State() == StateFailed {
		return ErrFailed
	}
	if c.State() == StateStreaming {
		setter, ok := any(c.sdk).(FrameRateSetter)
		if !ok {
			return ErrFrameRateUnsupported
		}
		if err := sdkError(DomainStream, "SetFrameRate", setter.SetFrameRate(fps)); err != nil {
			return err
		}
	}
	c.fps.Store(int32(fps))
	monitoring.Logf("clpe: frame rate set to %d fps", fps)
	return nil
}

// ReadCalibration reads and decodes camera cameraID's EEPROM record. The
// read is slow and the result is never cached, since self-calibrating
// hardware may change it at runtime.
func (c *Client[T]) ReadCalibration(cameraID int) (eeprom.Record, error) {
	if err := c.checkCamera(cameraID); err != nil {
		return eeprom.Record{}, err
	}
	buf := make([]byte, eeprom.RecordSize)
	if err := sdkError(DomainEeprom, "ReadEeprom", c.sdk.ReadEeprom(cameraID, buf)); err != nil {
		return eeprom.Record{}, fmt.Errorf("camera %d: %w", cameraID, err)
	}
	rec, err := eeprom.Decode(buf)
	if err != nil {
		return eeprom.Record{}, fmt.Errorf("camera %d: %w", cameraID, err)
	}
	return rec, nil
}

// CameraInfo reads the current calibration of cameraID and maps it to a
// full-resolution CameraInfo.
func (c *Client[T]) CameraInfo(cameraID int) (calibration.CameraInfo, error) {
	rec, err := c.ReadCalibration(cameraID)
	if err != nil {
		return calibration.CameraInfo{}, err
	}
	info := calibration.BuildCameraInfo(rec, frame.Width, frame.Height)
	info.FrameID = c.frameID(cameraID)
	return info, nil
}

// ReadFrame pulls a single frame from cameraID outside the stream callback
// path. A failed read yields no frame.
func (c *Client[T]) ReadFrame(cameraID int) (*frame.Frame, error) {
	if err := c.checkCamera(cameraID); err != nil {
		return nil, err
	}
	buf, ts, code := c.sdk.ReadFrameOnce(cameraID)
	if err := sdkError(DomainFrame, "ReadFrameOnce", code); err != nil {
		return nil, fmt.Errorf("camera %d: %w", cameraID, err)
	}
	f, err := frame.CopyOut(cameraID, buf, ts)
	if err != nil {
		return nil, err
	}
	f.FrameID = c.frameID(cameraID)
	return f, nil
}

func (c *Client[T]) checkCamera(cameraID int) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if cameraID < 0 || cameraID >= MAX_CAMERAS {
		return fmt.Errorf("%w: %d", ErrInvalidCamera, cameraID)
	}
	return nil
}
