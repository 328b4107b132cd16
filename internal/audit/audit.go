// Package audit periodically re-reads camera calibration and records every
// change in the history store. Self-calibrating hardware may rewrite its
// EEPROM at runtime; the audit trail shows when.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/db"
	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/monitoring"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

// CalibrationReader is the part of the camera client the auditor needs.
type CalibrationReader interface {
	ReadCalibration(cameraID int) (eeprom.Record, error)
	SessionID() string
	Cameras() []int
}

// Store is the part of the history store the auditor needs.
type Store interface {
	RecordCalibration(sessionID string, cameraID int, rec eeprom.Record, readAt time.Time) (int64, error)
	LatestCalibration(cameraID int) (db.CalibrationRead, error)
}

// Result summarises one audit pass.
type Result struct {
	Checked  int
	Recorded int
	Failed   int
}

type Auditor struct {
	client CalibrationReader
	store  Store
	clock  timeutil.Clock
	log    zerolog.Logger

	runs        atomic.Uint64
	changes     atomic.Uint64
	readErrors  atomic.Uint64
	storeErrors atomic.Uint64
	singular    atomic.Uint64
}

// New returns an Auditor. A nil clock uses the wall clock.
func New(client CalibrationReader, store Store, clock timeutil.Clock) *Auditor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Auditor{
		client: client,
		store:  store,
		clock:  clock,
		log:    monitoring.GetLogger("audit"),
	}
}

// Counters reports totals across all passes.
type Counters struct {
	Runs        uint64 `json:"runs"`
	Changes     uint64 `json:"changes"`
	ReadErrors  uint64 `json:"read_errors"`
	StoreErrors uint64 `json:"store_errors"`

	// SingularIntrinsics counts reads whose K cannot be inverted. Such
	// reads are still stored.
	SingularIntrinsics uint64 `json:"singular_intrinsics"`
}

func (a *Auditor) Counters() Counters {
	return Counters{
		Runs:        a.runs.Load(),
		Changes:     a.changes.Load(),
		ReadErrors:  a.readErrors.Load(),
		StoreErrors: a.storeErrors.Load(),

		SingularIntrinsics: a.singular.Load(),
	}
}

// RunOnce reads every enabled camera and stores the reads that differ from
// the latest stored one. Failures are logged and counted; they never stop
// the pass.
func (a *Auditor) RunOnce(ctx context.Context) Result {
	a.runs.Add(1)
	var res Result
	for _, id := range a.client.Cameras() {
		if ctx.Err() != nil {
			break
		}
		res.Checked++
		changed, err := a.auditCamera(id)
		if err != nil {
			res.Failed++
			a.log.Warn().Err(err).Int("camera", id).Msg("calibration audit failed")
			continue
		}
		if changed {
			res.Recorded++
		}
	}
	return res
}

func (a *Auditor) auditCamera(id int) (bool, error) {
	rec, err := a.client.ReadCalibration(id)
	if err != nil {
		a.readErrors.Add(1)
		return false, err
	}
	now := a.clock.Now()

	hfov, vfov, fovErr := calibration.BuildCameraInfo(rec, frame.Width, frame.Height).FieldOfView()
	if fovErr != nil {
		a.singular.Add(1)
		a.log.Warn().Err(fovErr).Int("camera", id).Msg("calibration has singular intrinsics")
	}

	prev, err := a.store.LatestCalibration(id)
	switch {
	case errors.Is(err, db.ErrNoCalibration):
	case err != nil:
		a.storeErrors.Add(1)
		return false, err
	case bytes.Equal(prev.Raw(), eeprom.Encode(rec)):
		return false, nil
	default:
		a.changes.Add(1)
		a.log.Info().
			Int("camera", id).
			Float32("fx", rec.Fx).
			Float32("prev_fx", prev.Record.Fx).
			Float64("hfov_deg", hfov).
			Float64("vfov_deg", vfov).
			Float32("eeprom_fov", rec.FOV).
			Time("prev_read_at", prev.ReadAt).
			Msg("camera calibration changed")
	}

	if _, err := a.store.RecordCalibration(a.client.SessionID(), id, rec, now); err != nil {
		a.storeErrors.Add(1)
		return false, fmt.Errorf("camera %d: %w", id, err)
	}
	return true, nil
}

// Run calls RunOnce every interval until ctx is cancelled. A non-positive
// interval returns immediately.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			res := a.RunOnce(ctx)
			a.log.Debug().
				Int("checked", res.Checked).
				Int("recorded", res.Recorded).
				Int("failed", res.Failed).
				Msg("calibration audit pass")
		}
	}
}
