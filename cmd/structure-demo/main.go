// Command structure-demo starts the camera and prints the first depth pixel
// every 100ms. With -tui it shows a live terminal dashboard instead.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/session"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	backend    = flag.String("backend", "", "Capture backend (sim, structure); overrides the config file")
	resolution = flag.String("resolution", "sxga", "Depth resolution (qvga, vga, sxga)")
	interval   = flag.Duration("interval", 100*time.Millisecond, "Polling interval")
	useTUI     = flag.Bool("tui", false, "Show the live terminal dashboard")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.Bool("log-color", true, "Enable colored log output")
)

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
	if *useTUI && cfg.LogLevel == "info" {
		// Log lines would tear the dashboard
		level = logger.SILENT
	}
	logger.Init(level, os.Stderr, *logColor)

	if err := checkInterval(*interval); err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}

	res, err := session.ParseDepthResolution(*resolution)
	if err != nil {
		log.Fatalf("Invalid resolution: %v", err)
	}

	cam, err := camera.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create camera: %v", err)
	}
	defer cam.Close()
	cam.SetDepthResolution(res)

	if *useTUI {
		p := tea.NewProgram(newModel(cam, *interval), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Printf("Error running program: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cam.Start(); err != nil {
		logger.Error("Main", "%v", err)
		fmt.Println("Failed to initialize capture session!")
		os.Exit(1)
	}
	fmt.Println("Successed to initialize capture session!")

	w, h := res.Dimensions()
	depth := make([]float32, w*h)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			cam.Stop()
			return
		case <-ticker.C:
			printFirstPixel(os.Stdout, cam, depth)
		}
	}
}

func checkInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	return nil
}

// printFirstPixel prints depth[0] of the latest frame. Nothing is printed
// until a frame has arrived.
func printFirstPixel(w io.Writer, cam *camera.StructureCamera, depth []float32) bool {
	if _, _, err := cam.LastDepthFrame(depth); err != nil {
		return false
	}
	fmt.Fprintf(w, "%f\n", depth[0])
	return true
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
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, config.Validate(cfg)
}
