// Command kndd is the zone-occupancy daemon: it turns a depth+color
// sensor into a catalog of named volumes, tracks which are occupied,
// and serves that state over a line-oriented TCP protocol.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/config"
	"github.com/e7canasta/kndd/internal/emitter"
	"github.com/e7canasta/kndd/internal/health"
	"github.com/e7canasta/kndd/internal/logging"
	"github.com/e7canasta/kndd/internal/lut"
	"github.com/e7canasta/kndd/internal/occupancy"
	"github.com/e7canasta/kndd/internal/persistence"
	"github.com/e7canasta/kndd/internal/sensor"
	"github.com/e7canasta/kndd/internal/sensor/sim"
	"github.com/e7canasta/kndd/internal/server"
	"github.com/e7canasta/kndd/internal/watchdog"
)

// watchdogPollInterval is how often the watchdog samples the clock
// against the last kick. Independent of both the init and run timeouts.
const watchdogPollInterval = 100 * time.Millisecond

// statsPollInterval is how often the operational counters pull values
// off components that do not push them directly.
const statsPollInterval = time.Second

// saveInterval is the minimum spacing between persistence writes,
// matching the original daemon's save cadence.
const saveInterval = 2 * time.Second

// crashGracePeriod is how long a supervised goroutine's panic handler
// waits after logging diagnostics and notifying siblings before it
// forces the process down, giving the shutdown path a chance to run.
const crashGracePeriod = 2 * time.Second

var crashing atomic.Bool

// runSupervised runs fn and, on panic, logs the panic value and stack,
// cancels the shared context so every other goroutine unwinds, and
// forces the process down after a short grace period. The crashing
// flag suppresses a second panicking goroutine from repeating the same
// diagnostics and exit. This is the panic/recover analogue of the
// original's async-signal-safe SIGFPE/SIGILL/SIGBUS/SIGSEGV handler.
func runSupervised(name string, cancel context.CancelFunc, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if crashing.CompareAndSwap(false, true) {
			slog.Error("kndd: goroutine panicked", "component", name, "panic", r, "stack", string(debug.Stack()))
			cancel()
			time.AfterFunc(crashGracePeriod, func() { os.Exit(1) })
		}
	}()
	fn()
}

func main() {
	configPath := flag.String("config", "", "path to an optional YAML configuration overlay")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("kndd: invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg)

	slog.Info("kndd: starting",
		"listen_addr", cfg.ListenAddr,
		"health_addr", cfg.HealthAddr,
		"save_dir", cfg.SaveDir,
		"simulated", cfg.Simulated,
	)

	tables := lut.New()
	cat := catalog.New(tables, catalog.DefaultStride, catalog.DefaultStride)

	store, err := persistence.Open(cfg.SaveDir)
	if err != nil {
		slog.Error("kndd: persistence init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		slog.Info("kndd: received shutdown signal, shutting down gracefully", "signal", sig)
		cancel()
		sig = <-sigCh
		slog.Warn("kndd: second shutdown signal received, forcing exit", "signal", sig)
		os.Exit(1)
	}()

	// SIGUSR2 is reserved for the in-process watchdog-escalation channel
	// rather than delivered to a specific goroutine (Go cannot target one),
	// but a real SIGUSR2 from outside the process is bridged onto the same
	// escalation path an operator relying on the original contract expects.
	usr2Ch := make(chan os.Signal, 1)
	signal.Notify(usr2Ch, syscall.SIGUSR2)
	defer signal.Stop(usr2Ch)
	go func() {
		for range usr2Ch {
			slog.Warn("kndd: received SIGUSR2, requesting graceful shutdown")
			cancel()
		}
	}()

	srv, err := server.New(cfg.ListenAddr, cat, tables, nil)
	if err != nil {
		slog.Error("kndd: server listen failed", "error", err)
		os.Exit(1)
	}

	counters := &health.Counters{}

	var overrunCount atomic.Int32
	wd := watchdog.New(cfg.InitTimeout, func() {
		counters.WatchdogOverruns.Add(1)
		n := overrunCount.Add(1)
		wd.Kick()
		if n == 1 {
			slog.Warn("kndd: watchdog overrun, requesting graceful shutdown")
			cancel()
			return
		}
		slog.Error("kndd: watchdog overrun persisted past shutdown, forcing exit")
		os.Exit(1)
	})
	go wd.Run(watchdogPollInterval)
	defer wd.Stop()

	device, err := newDevice(cfg)
	if err != nil {
		slog.Error("kndd: sensor device init failed", "error", err)
		os.Exit(1)
	}
	defer device.Close()

	sink := emitter.New(cfg.MQTT)
	defer sink.Close()

	engine := occupancy.New(cat)
	onTransition := func(z *catalog.Zone) {
		sink.Publish(z)
	}

	pipeline := sensor.New(device,
		func(frame []byte) {
			srv.StoreDepthFrame(frame)
			engine.Depth(frame, onTransition)
			counters.FramesProcessed.Add(1)
		},
		func(frame []byte) {
			srv.StoreVideoFrame(frame)
			engine.Video(frame)
		},
		wd, srv.Wakeup(),
	)
	srv.SetMotor(pipeline)

	if tilt, err := store.Load(cat); err != nil {
		slog.Error("kndd: loading saved zones failed", "error", err)
	} else if device.HasMotor() {
		pipeline.SetTilt(tilt)
	}

	healthSrv := health.New(cfg.HealthAddr, cat, counters, health.Status{
		SensorHealthy: func() bool { return overrunCount.Load() == 0 },
	})
	healthErrCh := healthSrv.Start()

	scheduler := persistence.NewScheduler(store, cat, saveInterval, func() int {
		tilt, _ := pipeline.Tilt()
		return tilt
	})
	schedStop := make(chan struct{})
	go runSupervised("persistence-scheduler", cancel, func() { scheduler.Run(schedStop) })

	go runSupervised("server", cancel, func() {
		if err := srv.Run(ctx); err != nil {
			slog.Error("kndd: server stopped", "error", err)
		}
	})

	go runSupervised("depth-worker", cancel, func() { pipeline.RunDepthWorker(ctx) })
	go runSupervised("video-worker", cancel, func() { pipeline.RunVideoWorker(ctx) })

	go runSupervised("stats-loop", cancel, func() { statsLoop(ctx, pipeline, srv, sink, counters) })

	wd.SetTimeout(cfg.RunTimeout)

	runErrCh := make(chan error, 1)
	go runSupervised("sensor-event-loop", cancel, func() {
		runErrCh <- pipeline.RunEventLoop(ctx)
	})

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil {
			slog.Error("kndd: sensor event loop exited", "error", err)
		}
		cancel()
	case err := <-healthErrCh:
		if err != nil {
			slog.Error("kndd: health server exited", "error", err)
		}
		cancel()
	}

	slog.Info("kndd: shutting down")
	close(schedStop)
	srv.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("kndd: health server shutdown", "error", err)
	}
	shutdownCancel()

	if tilt, err := pipeline.Tilt(); err != nil {
		slog.Warn("kndd: reading tilt for final save failed", "error", err)
	} else if err := store.Save(cat, tilt); err != nil {
		slog.Error("kndd: final save failed", "error", err)
	}

	slog.Info("kndd: stopped")
}

// newDevice selects the sensor.Device backing this run. A real hardware
// binding is out of scope for this build; only the simulated GStreamer
// device is wired, so a non-simulated request still runs against
// synthetic frames, with a warning so the mismatch is visible in logs.
func newDevice(cfg config.Config) (sensor.Device, error) {
	if !cfg.Simulated {
		slog.Warn("kndd: no hardware sensor binding in this build, running the simulated device instead")
	}
	return sim.New("smpte")
}

func statsLoop(ctx context.Context, pipeline *sensor.Pipeline, srv *server.Server, sink emitter.Sink, counters *health.Counters) {
	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counters.FramesBusy.Store(pipeline.BusyCount())
			counters.FramesDropped.Store(sink.Dropped())
			counters.ClientsConnected.Store(srv.ClientCount())
		}
	}
}
