package router

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

// gapFactor is how many frame intervals may pass between two captures
// before the second one counts as a gap.
const gapFactor = 1.5

// Stats holds lock-free delivery counters, written from the SDK thread and
// read by the control thread.
type Stats struct {
	cameras    []cameraStats
	outOfRange atomic.Uint64
}

type cameraStats struct {
	delivered         atomic.Uint64
	dropped           atomic.Uint64
	calibrationErrors atomic.Uint64
	publishErrors     atomic.Uint64
	gaps              atomic.Uint64
	lastCaptureUS     atomic.Int64
}

func newStats(n int) *Stats {
	return &Stats{cameras: make([]cameraStats, n)}
}

// observeCapture counts a gap when the capture time moved on by more than
// gapFactor frame intervals at fps. Captures that go backwards are ignored.
func (cs *cameraStats) observeCapture(ts frame.Timeval, fps int) {
	now := ts.Sec*1_000_000 + ts.Usec
	prev := cs.lastCaptureUS.Swap(now)
	if prev == 0 || fps <= 0 {
		return
	}
	interval := int64(time.Second/time.Microsecond) / int64(fps)
	if float64(now-prev) > gapFactor*float64(interval) {
		cs.gaps.Add(1)
	}
}

// CameraSnapshot is a point-in-time copy of one camera's counters.
type CameraSnapshot struct {
	CameraID          int       `json:"camera_id"`
	Delivered         uint64    `json:"delivered"`
	Dropped           uint64    `json:"dropped"`
	CalibrationErrors uint64    `json:"calibration_errors"`
	PublishErrors     uint64    `json:"publish_errors"`
	Gaps              uint64    `json:"gaps"`
	LastCapture       time.Time `json:"last_capture,omitzero"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Cameras    []CameraSnapshot `json:"cameras"`
	OutOfRange uint64           `json:"out_of_range"`
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Cameras:    make([]CameraSnapshot, len(s.cameras)),
		OutOfRange: s.outOfRange.Load(),
	}
	for id := range s.cameras {
		cs := &s.cameras[id]
		c := CameraSnapshot{
			CameraID:          id,
			Delivered:         cs.delivered.Load(),
			Dropped:           cs.dropped.Load(),
			CalibrationErrors: cs.calibrationErrors.Load(),
			PublishErrors:     cs.publishErrors.Load(),
			Gaps:              cs.gaps.Load(),
		}
		if us := cs.lastCaptureUS.Load(); us != 0 {
			c.LastCapture = time.UnixMicro(us).UTC()
		}
		snap.Cameras[id] = c
	}
	return snap
}

// Sub returns the counter increase from prev to s. Cameras missing from
// prev count from zero.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	out := Snapshot{
		Cameras:    make([]CameraSnapshot, len(s.Cameras)),
		OutOfRange: s.OutOfRange - prev.OutOfRange,
	}
	for i, c := range s.Cameras {
		d := c
		if i < len(prev.Cameras) {
			p := prev.Cameras[i]
			d.Delivered -= p.Delivered
			d.Dropped -= p.Dropped
			d.CalibrationErrors -= p.CalibrationErrors
			d.PublishErrors -= p.PublishErrors
			d.Gaps -= p.Gaps
		}
		out.Cameras[i] = d
	}
	return out
}

// LogStats logs the counters accumulated since prev over elapsed and
// returns the current snapshot for the next call.
func (r *Router) LogStats(prev Snapshot, elapsed time.Duration) Snapshot {
	cur := r.stats.Snapshot()
	delta := cur.Sub(prev)
	secs := elapsed.Seconds()
	for _, c := range delta.Cameras {
		if _, routed := r.reg.Lookup(c.CameraID); !routed && c.Dropped == 0 {
			continue
		}
		ev := r.log.Info()
		if c.CalibrationErrors > 0 || c.PublishErrors > 0 {
			ev = r.log.Warn()
		}
		if secs > 0 {
			ev = ev.Float64("fps", float64(c.Delivered)/secs)
		}
		ev.Int("camera", c.CameraID).
			Uint64("delivered", c.Delivered).
			Uint64("dropped", c.Dropped).
			Uint64("calibration_errors", c.CalibrationErrors).
			Uint64("publish_errors", c.PublishErrors).
			Uint64("gaps", c.Gaps).
			Msg("router stats")
	}
	if delta.OutOfRange > 0 {
		r.log.Warn().Uint64("count", delta.OutOfRange).Msg("out-of-range camera instances")
	}
	return cur
}

// RunStatsLogger logs delivery statistics every interval until ctx is
// done.
func (r *Router) RunStatsLogger(ctx context.Context, clock timeutil.Clock, interval time.Duration) {
	if interval <= 0 {
		return
	}
	prev := r.stats.Snapshot()
	last := clock.Now()

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			prev = r.LogStats(prev, now.Sub(last))
			last = now
		}
	}
}
