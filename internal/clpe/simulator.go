package clpe

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

// Status codes returned by the Simulator for failures it detects itself.
// Failures injected through the *Code fields return those values instead.
const (
	SIM_BAD_CREDENTIAL    = -1
	SIM_BUFFER_TOO_SMALL  = -2
	SIM_INVALID_CAMERA    = -3
	SIM_NOT_STREAMING     = -4
	SIM_ALREADY_STREAMING = -5
)

// Simulator implements SDK and FrameRateSetter in memory. It backs the
// -dev mode of the bridge and the package tests.
//
// Each camera owns a ring of frame.SDKBufferDepth buffers that are reused
// in turn, so a buffer handed to a callback is overwritten sixteen
// deliveries later, as on the hardware. Byte 0 of every frame holds the
// camera id and bytes 1..4 a little-endian per-camera sequence number.
type Simulator struct {
	// Password, when set, must match the Connect credential.
	Password string
	// FrameBytes is the payload size of each frame; frame.Size by default.
	FrameBytes int

	// Injected vendor codes. Zero means succeed.
	ConnectCode int
	EepromCode  int
	FrameCode   int
	StartCode   int
	StopCode    int
	RateCode    int

	// Manual disables the per-camera delivery goroutines; tests drive
	// delivery with Deliver.
	Manual bool

	clock timeutil.Clock

	mu        sync.Mutex
	calls     map[string]int
	records   [MAX_CAMERAS]eeprom.Record
	cams      [MAX_CAMERAS]simCamera
	cb        StreamCallback
	mask      CameraMask
	fps       int
	streaming bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

type simCamera struct {
	ring   [frame.SDKBufferDepth][]byte
	seq    uint32
	halted bool
	rateCh chan int
}

// NewSimulator returns a Simulator whose cameras carry DefaultRecord
// calibrations and whose timestamps and delivery ticks come from clock.
func NewSimulator(clock timeutil.Clock) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Simulator{
		FrameBytes: frame.Size,
		clock:      clock,
		calls:      make(map[string]int),
	}
	for id := range s.records {
		s.records[id] = DefaultRecord(id)
	}
	return s
}

// DefaultRecord is a plausible pinhole calibration for camera id.
func DefaultRecord(id int) eeprom.Record {
	rec := eeprom.Record{
		SignatureCode: 0xC1BE,
		Version:       1,
		Model:         eeprom.ModelJhang,
		Fx:            1000 + float32(id),
		Fy:            1000 + float32(id),
		Cx:            960,
		Cy:            540,
		K1:            0.1,
		K2:            -0.05,
		P1:            0.001,
		RMS:           0.2,
		FOV:           120,
	}
	rec.CalibrationTemperature = 25
	rec.SetProductionDate("2021-06-01")
	return rec
}

// SetRecord replaces the calibration stored for camera id, as a
// self-calibrating camera would.
func (s *Simulator) SetRecord(id int, rec eeprom.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
}

// Calls reports how many times the named SDK method was invoked.
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FrameRate returns the rate the stream runs at, 0 when idle.
func (s *Simulator) FrameRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

func (s *Simulator) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *Simulator) Connect(credential string) int {
	s.count("Connect")
	if s.ConnectCode != 0 {
		return s.ConnectCode
	}
	if s.Password != "" && credential != s.Password {
		return SIM_BAD_CREDENTIAL
	}
	return 0
}

func (s *Simulator) ReadEeprom(cameraID int, out []byte) int {
	s.count("ReadEeprom")
	if s.EepromCode != 0 {
		return s.EepromCode
	}
	if cameraID < 0 || cameraID >= MAX_CAMERAS {
		return SIM_INVALID_CAMERA
	}
	if len(out) < eeprom.RecordSize {
		return SIM_BUFFER_TOO_SMALL
	}
	s.mu.Lock()
	rec := s.records[cameraID]
	s.mu.Unlock()
	copy(out, eeprom.Encode(rec))
	return 0
}

func (s *Simulator) ReadFrameOnce(cameraID int) ([]byte, frame.Timeval, int) {
	s.count("ReadFrameOnce")
	if s.FrameCode != 0 {
		return nil, frame.Timeval{}, s.FrameCode
	}
	if cameraID < 0 || cameraID >= MAX_CAMERAS {
		return nil, frame.Timeval{}, SIM_INVALID_CAMERA
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ts := s.nextFrameLocked(cameraID)
	return buf, ts, 0
}

func (s *Simulator) StartStream(cb StreamCallback, frameRate int, cameras CameraMask) int {
	s.count("StartStream")
	if s.StartCode != 0 {
		return s.StartCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return SIM_ALREADY_STREAMING
	}
	s.cb = cb
	s.mask = cameras
	s.fps = frameRate
	s.streaming = true
	s.stop = make(chan struct{})
	for id := range s.cams {
		s.cams[id].halted = false
		s.cams[id].rateCh = make(chan int, 1)
	}

	if !s.Manual {
		for _, id := range cameras.IDs() {
			s.wg.Add(1)
			go s.run(id, frameRate, s.cams[id].rateCh, s.stop)
		}
	}
	return 0
}

// StopStream stops delivery and waits for in-flight callbacks to return.
// It must not be called from inside the callback.
func (s *Simulator) StopStream() int {
	s.count("StopStream")
	if s.StopCode != 0 {
		return s.StopCode
	}

	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return SIM_NOT_STREAMING
	}
	s.streaming = false
	s.fps = 0
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	return 0
}

func (s *Simulator) SetFrameRate(fps int) int {
	s.count("SetFrameRate")
	if s.RateCode != 0 {
		return s.RateCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return SIM_NOT_STREAMING
	}
	s.fps = fps
	for _, id := range s.mask.IDs() {
		ch := s.cams[id].rateCh
		// Replace any pending update with the newest one.
		select {
		case <-ch:
		default:
		}
		ch <- fps
	}
	return 0
}

// Deliver synchronously produces the next frame for cameraID and passes it
// to the stream callback. It returns the callback status, or
// SIM_NOT_STREAMING when the camera is not delivering.
func (s *Simulator) Deliver(cameraID int) int {
	s.mu.Lock()
	if !s.streaming || !s.mask.Has(cameraID) || s.cams[cameraID].halted {
		s.mu.Unlock()
		return SIM_NOT_STREAMING
	}
	cb := s.cb
	buf, ts := s.nextFrameLocked(cameraID)
	s.mu.Unlock()

	status := cb(uint32(cameraID), buf, ts)
	if status != 0 {
		s.mu.Lock()
		s.cams[cameraID].halted = true
		s.mu.Unlock()
	}
	return status
}

// Sequence returns the number of frames produced for cameraID so far.
func (s *Simulator) Sequence(cameraID int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cams[cameraID].seq
}

func (s *Simulator) run(id, fps int, rateCh <-chan int, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(time.Second / time.Duration(fps))
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-stop:
			return
		case next := <-rateCh:
			ticker.Stop()
			ticker = s.clock.NewTicker(time.Second / time.Duration(next))
		case <-ticker.C():
			if s.Deliver(id) != 0 {
				return
			}
		}
	}
}

// nextFrameLocked fills the next ring slot of cameraID. s.mu must be held.
func (s *Simulator) nextFrameLocked(cameraID int) ([]byte, frame.Timeval) {
	cam := &s.cams[cameraID]
	slot := cam.seq % frame.SDKBufferDepth
	if len(cam.ring[slot]) != s.FrameBytes {
		cam.ring[slot] = make([]byte, s.FrameBytes)
	}
	buf := cam.ring[slot]

	if len(buf) > 0 {
		buf[0] = byte(cameraID)
	}
	if len(buf) >= 5 {
		binary.LittleEndian.PutUint32(buf[1:5], cam.seq)
	}
	cam.seq++
	return buf, frame.TimevalFromTime(s.clock.Now())
}

// FrameHeader extracts the camera id and sequence number the Simulator
// writes at the start of each frame.
func FrameHeader(data []byte) (cameraID int, seq uint32, ok bool) {
	if len(data) < 5 {
		return 0, 0, false
	}
	return int(data[0]), binary.LittleEndian.Uint32(data[1:5]), true
}
