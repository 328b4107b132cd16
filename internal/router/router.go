package router

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/monitoring"
)

// Status codes returned to the SDK from Entry.
const (
	StatusContinue = 0
	StatusStop     = 1
)

// CameraInfoSource supplies the current calibration for a camera. It is
// called for every frame, since calibration can change while streaming.
type CameraInfoSource interface {
	CameraInfo(cameraID int) (calibration.CameraInfo, error)
}

// Router is the stream callback target. Entry is passed to the SDK's
// StartStream; everything it reads is either immutable or atomic, so it
// never waits on the control thread.
type Router struct {
	reg       *Registry
	source    CameraInfoSource
	stats     *Stats
	frameRate func() int
	closed    atomic.Bool

	log zerolog.Logger
	hot zerolog.Logger // sampled, for per-frame warnings
}

// Option configures a Router.
type Option func(*Router)

// WithFrameRate supplies the live stream rate used to detect gaps between
// consecutive captures. Without it no gaps are counted.
func WithFrameRate(f func() int) Option {
	return func(r *Router) { r.frameRate = f }
}

// WithLogger replaces the router's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New returns a Router delivering to the consumers in reg.
func New(reg *Registry, source CameraInfoSource, opts ...Option) *Router {
	r := &Router{
		reg:       reg,
		source:    source,
		stats:     newStats(reg.CameraCount()),
		frameRate: func() int { return 0 },
		log:       monitoring.GetLogger("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.hot = r.log.Sample(&zerolog.BurstSampler{Burst: 5, Period: 10 * time.Second})
	return r
}

// Entry handles one frame delivery from the SDK. The frame is copied out of
// buf before Entry returns; buf is not referenced afterwards.
func (r *Router) Entry(instance uint32, buf []byte, ts frame.Timeval) int {
	if r.closed.Load() {
		return StatusStop
	}

	if instance >= uint32(r.reg.CameraCount()) {
		r.stats.outOfRange.Add(1)
		r.hot.Warn().Uint32("instance", instance).Int("camera_count", r.reg.CameraCount()).
			Msg("frame from out-of-range camera instance")
		return StatusContinue
	}
	id := int(instance)
	cs := &r.stats.cameras[id]

	f, err := frame.CopyOut(id, buf, ts)
	if err != nil {
		cs.dropped.Add(1)
		r.hot.Warn().Err(err).Int("camera", id).Msg("dropping frame")
		return StatusContinue
	}
	cs.observeCapture(ts, r.frameRate())

	consumer, ok := r.reg.Lookup(id)
	if !ok {
		cs.dropped.Add(1)
		return StatusContinue
	}

	info, err := r.source.CameraInfo(id)
	if err != nil {
		cs.calibrationErrors.Add(1)
		r.hot.Error().Err(err).Int("camera", id).Msg("calibration unavailable, frame not published")
		return StatusContinue
	}
	if info.FrameID != "" {
		f.FrameID = info.FrameID
	}

	if err := consumer.Publish(f, info); err != nil {
		if errors.Is(err, ErrStopDelivery) {
			r.log.Info().Int("camera", id).Msg("consumer requested stop")
			return StatusStop
		}
		cs.publishErrors.Add(1)
		r.hot.Error().Err(err).Int("camera", id).Msg("publish failed")
		return StatusContinue
	}
	cs.delivered.Add(1)
	return StatusContinue
}

// Close makes every further Entry call return StatusStop.
func (r *Router) Close() {
	if r.closed.CompareAndSwap(false, true) {
		r.log.Info().Msg("router closed")
	}
}

// Stats exposes the router's counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// Registry returns the registry the router was built with.
func (r *Router) Registry() *Registry {
	return r.reg
}
