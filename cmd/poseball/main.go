package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/poseball/internal/app"
	"github.com/ayusman/poseball/internal/detector"
	"github.com/ayusman/poseball/internal/render"
	"github.com/ayusman/poseball/internal/server"
	"github.com/ayusman/poseball/internal/store"
	"github.com/ayusman/poseball/internal/tray"
)

type config struct {
	Addr       string
	DataDir    string
	CameraID   int
	Width      int
	Height     int
	GloveImage string
	WebDir     string
	Detector   detector.Config
	Mock       bool
	Tray       bool
	Enable     bool
}

func main() {
	fmt.Println("Poseball - webcam pose ball demo")

	cfg := parseFlags()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(filepath.Join(cfg.DataDir, "poseball.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()
	fmt.Printf("Run history: %s\n", st.Path())

	a := app.New(app.Config{
		Store:      st,
		CameraID:   cfg.CameraID,
		Width:      cfg.Width,
		Height:     cfg.Height,
		GloveImage: cfg.GloveImage,
	})
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load the pose model in the background; toggling before it is ready is a no-op.
	go func() {
		if cfg.Mock {
			a.SetDetector(detector.NewMockDetector())
			log.Println("Using mock pose detection")
		} else if err := a.LoadModel(ctx, cfg.Detector); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			a.SetDetector(detector.NewMockDetector())
		}
		if cfg.Enable {
			if err := a.Enable(); err != nil {
				log.Printf("Failed to enable webcam: %v", err)
			}
		}
	}()

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	var frames server.FrameSource
	if src, ok := a.Canvas().(*render.MatSurface); ok {
		frames = src
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Controller: a,
		Frames:     frames,
	})
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv}

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
			cancel()
		}
	}()

	if cfg.Tray {
		t := tray.New(a)
		a.OnFrame(t.Update)
		t.OnOpen(func() { openBrowser(browserURL(cfg.Addr)) })
		t.OnQuit(cancel)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray must own the main goroutine.
		t.Run()
	} else {
		<-ctx.Done()
	}

	fmt.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

// parseFlags parses command line flags with environment variable fallbacks.
func parseFlags() config {
	det := detector.DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	addr := flag.String("addr", envOr("POSEBALL_ADDR", ":8080"), "HTTP listen address")
	dataDir := flag.String("data", envOr("POSEBALL_DATA", filepath.Join(homeDir, ".poseball")), "Data directory for the run database")
	cameraID := flag.Int("camera", 0, "Camera device ID")
	width := flag.Int("width", 1280, "Requested capture width")
	height := flag.Int("height", 720, "Requested capture height")
	glove := flag.String("glove", "assets/glove.png", "Glove image drawn over the wrists")
	webDir := flag.String("web", "", "Static web directory (searched for when empty)")
	model := flag.String("model", "", "Pose landmarker model path, downloaded when missing (default <data>/models/pose_landmarker_lite.task)")
	delegate := flag.String("delegate", string(det.Delegate), "Inference delegate: GPU or CPU")
	mock := flag.Bool("mock", false, "Use the mock pose detector")
	withTray := flag.Bool("tray", false, "Show a system tray toggle")
	enable := flag.Bool("enable", false, "Enable the webcam as soon as the model loads")
	flag.Parse()

	if *model == "" {
		*model = filepath.Join(*dataDir, "models", filepath.Base(det.ModelPath))
	}
	det.ModelPath = *model
	det.Delegate = detector.Delegate(*delegate)

	return config{
		Addr:       *addr,
		DataDir:    *dataDir,
		CameraID:   *cameraID,
		Width:      *width,
		Height:     *height,
		GloveImage: *glove,
		WebDir:     *webDir,
		Detector:   det,
		Mock:       *mock,
		Tray:       *withTray,
		Enable:     *enable,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.poseball/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".poseball", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func browserURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}
