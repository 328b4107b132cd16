// Command clpe-bridge streams the cameras of a CLPE frame grabber to
// per-camera publishers, attaching the calibration read from each camera's
// EEPROM to every frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/clpe-bridge/internal/clpe"
	"github.com/banshee-data/clpe-bridge/internal/config"
	"github.com/banshee-data/clpe-bridge/internal/db"
	"github.com/banshee-data/clpe-bridge/internal/monitoring"
	"github.com/banshee-data/clpe-bridge/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file (defaults apply when empty)")
	devMode     = flag.Bool("dev", false, "Use the in-memory camera simulator instead of the CLPE card")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides config)")
	dbPath      = flag.String("db", "", "Calibration history database path (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := monitoring.Configure(cfg.GetLogLevel(), cfg.GetLogFormat(), os.Stderr); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	monitoring.Logf("%s", version.String())

	client, credential, err := newClient(cfg, *devMode)
	if err != nil {
		monitoring.Logger.Fatal().Err(err).Msg("failed to create camera client")
	}
	if err := client.Connect(credential); err != nil {
		monitoring.Logger.Fatal().Err(err).Msg("failed to connect to CLPE")
	}

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		monitoring.Logger.Fatal().Err(err).Msg("failed to open calibration history")
	}
	defer store.Close()

	b, err := newBridge(cfg, client, store, nil)
	if err != nil {
		monitoring.Logger.Fatal().Err(err).Msg("failed to set up bridge")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.start(ctx); err != nil {
		monitoring.Logger.Fatal().Err(err).Msg("failed to start bridge")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.runLoops(ctx)
		monitoring.Logf("stats and audit routines terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		b.attachAdminRoutes(mux)

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			monitoring.Logf("debug server listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				monitoring.Logf("debug server failed: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
	}()

	<-ctx.Done()
	b.shutdown()

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
}

func loadConfig(path string) (*config.BridgeConfig, error) {
	if path == "" {
		return &config.BridgeConfig{}, nil
	}
	return config.LoadConfig(path)
}

// newClient returns the simulator-backed client in dev mode and the vendor
// binding otherwise, along with the credential to connect with.
func newClient(cfg *config.BridgeConfig, dev bool) (clpe.ClientInterface, string, error) {
	mask, err := clpe.MaskOf(cfg.GetCameras()...)
	if err != nil {
		return nil, "", err
	}
	opts := []clpe.Option{clpe.WithCameras(mask), clpe.WithFrameID(cfg.FrameID)}

	if dev {
		// The simulator accepts any credential.
		credential, _ := cfg.Credential()
		return clpe.NewClient(clpe.NewSimulator(nil), opts...), credential, nil
	}

	credential, err := cfg.Credential()
	if err != nil {
		return nil, "", err
	}
	client, err := clpe.NewHardwareClient(opts...)
	if err != nil {
		return nil, "", err
	}
	return client, credential, nil
}
