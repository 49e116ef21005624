package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtsp-kiosk/internal/engine/gstreamer"
	"rtsp-kiosk/internal/engine/sim"
	"rtsp-kiosk/internal/kiosk"
	"rtsp-kiosk/internal/overlay"
	"rtsp-kiosk/internal/platform/config"
	"rtsp-kiosk/internal/platform/logger"
	"rtsp-kiosk/internal/platform/metrics"
	"rtsp-kiosk/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	mqttDialTimeout = 10 * time.Second
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk display controller",
		Example: `  kiosk serve
  kiosk serve -e rtsp://192.168.1.75:8554/live --engine sim`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ep, err := kiosk.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return err
	}

	met := metrics.New()
	engine, surface, sink := newEngine(cfg, log)
	history := kiosk.NewSessionHistory(kiosk.DefaultHistoryLimit)

	ctrl := kiosk.NewStreamController(engine, kiosk.ControllerConfig{
		Surface:        surface,
		EngineOptions:  kiosk.DefaultEngineOptions(cfg.EngineVerbosity),
		RTSPTimeout:    cfg.RTSPTimeout,
		EventQueueSize: cfg.EventQueueSize,
		Reconnect: kiosk.ReconnectPolicy{
			InitialDelay: cfg.ReconnectInitialDelay,
			MaxDelay:     cfg.ReconnectMaxDelay,
		},
		ErrorReconnectGrace: cfg.ErrorReconnectGrace,
		History:             history,
	}, log, met)
	defer ctrl.Close()

	if pub := connectTelemetry(cmd.Context(), cfg, log); pub != nil {
		ctrl.SetNotifier(pub)
		defer pub.Close()
	}

	display := overlay.New(time.Now, cfg.OverlayTick, sink, log)
	defer display.Stop()
	timer := kiosk.NewIdleTimerCoordinator(kiosk.RealClock{}, log, met)
	binder := kiosk.NewLifecycleBinder(ctrl, timer, display, ep, log, met)
	h := kiosk.NewHandler(binder, ctrl, timer, display, history, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetSessionActive(ctrl.Active()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	log.Info("kiosk starting",
		slog.String("endpoint", ep.Redacted()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("engine", cfg.Engine),
		slog.String("log_level", cfg.LogLevel))

	// The daemon is its own host: the view exists and is active from boot.
	binder.OnCreated()
	if err := binder.OnActive(); err != nil {
		log.Warn("initial activation failed, waiting for host signal", slog.String("error", err.Error()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-srvErr:
		log.Error("server error", slog.String("error", err.Error()))
		runErr = fmt.Errorf("http server: %w", err)
	}

	binder.OnInactive()
	binder.OnDestroyed()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	log.Info("kiosk stopped")
	return runErr
}

// newEngine picks the playback engine. The returned sink receives the idle
// clock text; it is nil when the engine cannot draw it.
func newEngine(cfg *config.Config, log *slog.Logger) (kiosk.Engine, kiosk.Surface, overlay.Sink) {
	if cfg.Engine == "sim" {
		return sim.New(sim.Options{StepDelay: 200 * time.Millisecond}, log), sim.NewSurface(cfg.VideoSink), nil
	}
	surface := gstreamer.NewSurface(cfg.VideoSink)
	return gstreamer.New(log), surface, surface
}

// connectTelemetry returns a connected publisher, or nil when MQTT is not
// configured or unreachable. Telemetry never blocks the kiosk from running.
func connectTelemetry(ctx context.Context, cfg *config.Config, log *slog.Logger) *telemetry.Publisher {
	if cfg.MQTT.Broker == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mqttDialTimeout)
	defer cancel()

	pub := telemetry.NewPublisher(cfg.MQTT, log)
	if err := pub.Connect(ctx); err != nil {
		log.Warn("telemetry disabled", slog.String("error", err.Error()))
		pub.Close()
		return nil
	}
	return pub
}
