// Command structure-monitor runs the camera behind the HTTP monitor, with
// optional recording, WebRTC telemetry and MQTT status publishing.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/emitter"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/internal/monitor"
	"github.com/dj-oyu/structure-camera/internal/recorder"
	"github.com/dj-oyu/structure-camera/internal/webrtc"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	backend     = flag.String("backend", "", "Capture backend (sim, structure); overrides the config file")
	httpAddr    = flag.String("http", "", "HTTP monitor address; overrides the config file")
	metricsAddr = flag.String("metrics", "", "Metrics server address; overrides the config file")
	recordPath  = flag.String("record-path", "", "Recording output path; overrides the config file")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker (host:port or URL); overrides the config file")
	noWebRTC    = flag.Bool("no-webrtc", false, "Disable the WebRTC telemetry channel")
	autoStart   = flag.Bool("start", false, "Start streaming immediately")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

var mainLog = logger.Module("Main")

// App holds the running services
type App struct {
	cfg        *config.Config
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	metrics    *metrics.Metrics
	camera     *camera.StructureCamera
	recorder   *recorder.Recorder
	webrtc     *webrtc.Server
	emitter    *emitter.MQTTEmitter
	monitor    *monitor.Server
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor && cfg.LogColor)

	mainLog.Info("Structure monitor starting...")
	mainLog.Info("Log level: %s", level)

	if err := os.MkdirAll(cfg.Recorder.OutputPath, 0755); err != nil {
		log.Fatalf("Failed to create recordings directory: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create monitor: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Failed to start monitor: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	mainLog.Info("Shutting down...")
	if err := app.Shutdown(); err != nil {
		mainLog.Error("Error during shutdown: %v", err)
	}
	mainLog.Info("Monitor stopped")
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := config.DefaultConfig()
		cfg = &def
	}

	if *backend != "" {
		cfg.Backend = *backend
	}
	if *httpAddr != "" {
		cfg.Monitor.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.Monitor.MetricsAddr = *metricsAddr
	}
	if *recordPath != "" {
		cfg.Recorder.OutputPath = *recordPath
	}
	if *mqttBroker != "" {
		cfg.MQTT.Broker = *mqttBroker
	}
	if *noWebRTC {
		cfg.WebRTC.Enabled = false
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, config.Validate(cfg)
}

// NewApp builds every configured service without starting any of them
func NewApp(cfg *config.Config) (*App, error) {
	m := metrics.New()

	cam, err := camera.NewFromConfig(cfg, camera.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	rec := recorder.New(cfg.Recorder.OutputPath, cam,
		recorder.WithInterval(cfg.Recorder.Interval),
		recorder.WithFrames(cfg.Recorder.IncludeFrames),
		recorder.WithMetrics(m),
	)

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		metrics:  m,
		camera:   cam,
		recorder: rec,
	}

	opts := []monitor.Option{monitor.WithRecorder(rec), monitor.WithMetrics(m)}
	if cfg.WebRTC.Enabled {
		app.webrtc = webrtc.NewServer(cfg.WebRTC, cam, m)
		opts = append(opts, monitor.WithWebRTC(app.webrtc))
	}
	if cfg.MQTT.Broker != "" {
		app.emitter = emitter.New(cfg, cam, m)
	}

	app.monitor = monitor.New(cfg, cam, opts...)
	app.httpServer = &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           app.monitor.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Start launches the listeners and background publishers
func (a *App) Start() error {
	mainLog.Info("Starting services...")
	mainLog.Info("  Backend: %s", a.cfg.Backend)
	mainLog.Info("  Instance: %s", a.cfg.InstanceID)
	mainLog.Info("  HTTP server: %s", a.cfg.Monitor.Addr)
	mainLog.Info("  Recording path: %s", a.cfg.Recorder.OutputPath)

	if addr := a.cfg.Monitor.MetricsAddr; addr != "" && addr != a.cfg.Monitor.Addr {
		go func() {
			mainLog.Info("Starting metrics server on %s", addr)
			if err := a.metrics.StartServer(addr); err != nil {
				mainLog.Error("Metrics server error: %v", err)
			}
		}()
	}

	go func() {
		mainLog.Info("Starting HTTP server on %s", a.cfg.Monitor.Addr)
		if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			mainLog.Error("HTTP server error: %v", err)
		}
	}()

	if a.webrtc != nil {
		a.webrtc.Start()
	}

	if a.emitter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			// The client keeps retrying in the background after a failed first attempt
			if err := a.emitter.Connect(a.ctx); err != nil {
				mainLog.Warn("MQTT connect: %v", err)
			}
			a.emitter.Run(a.ctx)
		}()
	}

	if *autoStart {
		if err := a.camera.Start(); err != nil {
			return err
		}
	}

	mainLog.Info("Monitor started successfully")
	return nil
}

// Shutdown stops the services in reverse order of dependency
func (a *App) Shutdown() error {
	a.cancel()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpErr := a.httpServer.Shutdown(ctx)

	a.monitor.Close()
	if a.emitter != nil {
		a.emitter.Disconnect()
	}
	if a.webrtc != nil {
		_ = a.webrtc.Close()
	}
	if err := a.recorder.Close(); err != nil {
		mainLog.Warn("Recorder close: %v", err)
	}
	if err := a.camera.Close(); err != nil {
		mainLog.Warn("Camera close: %v", err)
	}
	return httpErr
}
