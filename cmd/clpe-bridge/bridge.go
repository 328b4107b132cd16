package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/banshee-data/clpe-bridge/internal/audit"
	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/clpe"
	"github.com/banshee-data/clpe-bridge/internal/config"
	"github.com/banshee-data/clpe-bridge/internal/db"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/monitoring"
	"github.com/banshee-data/clpe-bridge/internal/router"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

// bridge owns everything between a connected client and the debug server.
type bridge struct {
	cfg    *config.BridgeConfig
	client clpe.ClientInterface
	store  *db.DB
	router *router.Router
	audit  *audit.Auditor
	clock  timeutil.Clock
}

// logPublisher stands in for the middleware image and camera-info
// publishers. It logs a sampled summary of each camera's frames.
type logPublisher struct {
	log zerolog.Logger
}

func newLogPublisher(cameraID int) *logPublisher {
	l := monitoring.GetLogger("publisher").With().Int("camera", cameraID).Logger()
	return &logPublisher{
		log: l.Sample(&zerolog.BasicSampler{N: clpe.MAX_FRAME_RATE}),
	}
}

func (p *logPublisher) Publish(f *frame.Frame, info calibration.CameraInfo) error {
	p.log.Debug().
		Str("frame_id", f.FrameID).
		Time("stamp", f.Timestamp).
		Int("bytes", len(f.Data)).
		Str("distortion_model", info.DistortionModel).
		Float64("fx", info.K[0]).
		Msg("frame")
	return nil
}

func newBridge(cfg *config.BridgeConfig, client clpe.ClientInterface, store *db.DB, clock timeutil.Clock) (*bridge, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	routes := make(map[int]router.Consumer, len(client.Cameras()))
	for _, id := range client.Cameras() {
		routes[id] = newLogPublisher(id)
	}
	reg, err := router.NewRegistry(clpe.MAX_CAMERAS, routes)
	if err != nil {
		return nil, fmt.Errorf("failed to build camera registry: %w", err)
	}
	monitoring.Logf("routing cameras %v of %d", reg.IDs(), reg.CameraCount())

	return &bridge{
		cfg:    cfg,
		client: client,
		store:  store,
		router: router.New(reg, client, router.WithFrameRate(client.FrameRate)),
		audit:  audit.New(client, store, clock),
		clock:  clock,
	}, nil
}

// start starts the stream and then records the startup calibration under
// the new session id.
func (b *bridge) start(ctx context.Context) error {
	if err := b.client.StartStream(b.cfg.GetFrameRate(), b.router.Entry); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	res := b.audit.RunOnce(ctx)
	monitoring.Logf("startup calibration read: session %s, %d cameras, %d recorded, %d failed",
		b.client.SessionID(), res.Checked, res.Recorded, res.Failed)
	return nil
}

func (b *bridge) attachAdminRoutes(mux *http.ServeMux) {
	b.client.AttachAdminRoutes(mux)
	b.router.AttachAdminRoutes(mux)
	b.audit.AttachAdminRoutes(mux)
	b.store.AttachAdminRoutes(mux)
}

// runLoops runs the stats logger and the periodic audit until ctx is done.
func (b *bridge) runLoops(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.router.RunStatsLogger(ctx, b.clock, b.cfg.GetStatsInterval())
	}()
	go func() {
		defer wg.Done()
		b.audit.Run(ctx, b.cfg.GetAuditInterval())
	}()
	wg.Wait()
}

// shutdown stops the stream before closing the router, so the SDK has
// released the callback by the time frames are refused.
func (b *bridge) shutdown() {
	if err := b.client.Stop(); err != nil {
		monitoring.Logf("failed to stop stream: %v", err)
	}
	b.router.Close()

	var delivered, dropped uint64
	for _, c := range b.router.Stats().Snapshot().Cameras {
		delivered += c.Delivered
		dropped += c.Dropped
	}
	monitoring.Logf("bridge stopped: %d frames delivered, %d dropped", delivered, dropped)
}
