package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/broker"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/publish"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath     string
	replay         string
	replayInterval time.Duration
	dryRun         bool
	noWindow       bool
	tray           bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.StringVar(&opts.replay, "replay", "", "Replay finger counts from a script file instead of the camera")
	flag.DurationVar(&opts.replayInterval, "replay-interval", 0, "Minimum time per replayed observation")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Log commands instead of publishing them over MQTT")
	flag.BoolVar(&opts.noWindow, "no-window", false, "Do not open the camera preview window")
	flag.BoolVar(&opts.tray, "tray", false, "Show a system tray menu")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mudra", "config", opts.configPath, "debug", *debug)

	if err := run(opts); err != nil {
		slog.Error("mudra failed", "error", err)
		os.Exit(1)
	}

	slog.Info("mudra stopped")
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.tray {
		cfg.Display.Tray = true
	}
	if opts.noWindow || opts.replay != "" {
		cfg.Display.Window = false
	}

	// Already validated by config.Load.
	mapper, _ := command.NewMapper(cfg.Mapping)
	codec, _ := command.CodecFor(cfg.MQTT.PayloadFormat)
	policy, _ := publish.ParsePolicy(cfg.Publish.CommitPolicy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		transport publish.Transport
		link      app.Link
	)
	if opts.dryRun {
		transport = dryRunTransport{}
	} else {
		client, err := connectBroker(ctx, cfg.MQTT)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		transport, link = client, client
	}

	source, frames, err := openSource(cfg, opts)
	if err != nil {
		return err
	}

	var (
		journal app.Journal
		history server.History
	)
	if cfg.Store.Path != "" {
		st, err := store.New(cfg.Store.Path)
		if err != nil {
			source.Close()
			return fmt.Errorf("open journal: %w", err)
		}
		defer st.Close()
		journal, history = st.Publishes(), st.Publishes()
		openJournal(st, cfg.Store.Retention)
	}

	tracker := display.NewTracker()
	displays := display.Multi{display.NewLogDisplay(slog.Default()), tracker}

	var window *display.Window
	if cfg.Display.Window && !cfg.Display.Tray {
		window = display.NewWindow("Mudra", frames)
		displays = append(displays, window)
	}

	var systray *tray.Tray
	if cfg.Display.Tray {
		systray = tray.New()
		displays = append(displays, systray)
	}

	a, err := app.New(app.Config{
		Source:    source,
		Threshold: cfg.Stability.Threshold,
		Mapper:    mapper,
		Gate: publish.NewGate(transport, publish.GateConfig{
			Topic:  cfg.MQTT.CommandTopic,
			Codec:  codec,
			Policy: policy,
		}),
		Link:     link,
		Display:  displays,
		Journal:  journal,
		Interval: opts.replayInterval,
		Logger:   slog.Default(),
	})
	if err != nil {
		source.Close()
		return err
	}

	var httpServer *http.Server
	if cfg.Server.Enabled {
		srvCfg := server.Config{
			StaticDir: findWebDir(),
			Status:    tracker,
			History:   history,
			Toggle:    a,
		}
		if frames != nil {
			srvCfg.Frames = frames
		}
		httpServer = server.New(srvCfg).HTTPServer(cfg.Server.Addr)

		go func() {
			slog.Info("status server listening", "addr", cfg.Server.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server failed", "error", err)
			}
		}()
	}

	a.Start(ctx)

	switch {
	case systray != nil:
		systray.OnToggle(a.SetEnabled)
		systray.OnQuit(stop)
		systray.OnOpen(func() { openBrowser(statusURL(cfg.Server.Addr)) })
		go func() {
			select {
			case <-ctx.Done():
			case <-a.Done():
			}
			systray.Quit()
		}()
		systray.Run()

	case window != nil:
		wctx, cancel := context.WithCancel(ctx)
		go func() {
			<-a.Done()
			cancel()
		}()
		if err := window.Run(wctx); errors.Is(err, display.ErrQuit) {
			slog.Info("quit requested from window")
		}
		cancel()

	default:
		select {
		case <-ctx.Done():
			slog.Info("received shutdown signal")
		case <-a.Done():
		}
	}

	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)
	a.Stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("status server shutdown failed", "error", err)
		}
	}

	return a.Err()
}

// connectBroker resolves the broker address, optionally via mDNS, and starts
// connecting. An unreachable broker is not fatal; the client keeps retrying.
func connectBroker(ctx context.Context, cfg config.MQTTConfig) (*broker.Client, error) {
	url, err := brokerURL(ctx, cfg, broker.Discover)
	if err != nil {
		return nil, err
	}

	client, err := broker.New(broker.Config{
		URL:      url,
		Username: cfg.Username,
		Password: cfg.Password,
		ClientID: cfg.ClientID,
		QoS:      cfg.QoS,
		Retain:   cfg.Retain,
	})
	if err != nil {
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// brokerURL picks the broker address. With discovery enabled an mDNS answer
// wins and the configured URL is the fallback when nothing answers.
func brokerURL(ctx context.Context, cfg config.MQTTConfig, discover func(context.Context, time.Duration) (string, error)) (string, error) {
	if !cfg.Discover {
		return cfg.URL, nil
	}

	found, err := discover(ctx, broker.DefaultDiscoveryTimeout)
	switch {
	case err == nil:
		return found, nil
	case cfg.URL == "":
		return "", fmt.Errorf("discover broker: %w", err)
	default:
		slog.Warn("broker discovery failed, using configured url", "url", cfg.URL, "error", err)
		return cfg.URL, nil
	}
}

// openSource returns the observation source and, for the camera, the frame
// provider used by the preview window and MJPEG stream.
func openSource(cfg *config.Config, opts options) (classifier.Source, display.Frames, error) {
	if opts.replay != "" {
		src, err := classifier.LoadScript(opts.replay)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("replaying script", "path", opts.replay, "observations", src.Remaining())
		return src, nil, nil
	}

	det, err := detector.NewMediaPipeDetector(cfg.Detector)
	if err != nil {
		return nil, nil, fmt.Errorf("hand detector unavailable: %w", err)
	}

	cam := capture.NewCamera(capture.Config{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	})

	src, err := classifier.NewCameraSource(cam, det, classifier.CameraConfig{
		Mirror:          cfg.Camera.Mirror,
		MaxReadFailures: cfg.Stability.MaxReadFailures,
		MotionThreshold: cfg.Camera.MotionThreshold,
	})
	if err != nil {
		det.Close()
		return nil, nil, err
	}
	slog.Info("camera opened", "device", cfg.Camera.Device)
	return src, src, nil
}

// openJournal prunes entries past the retention window and logs the journal size.
func openJournal(st *store.Store, retention time.Duration) {
	if retention > 0 {
		removed, err := st.Publishes().Prune(time.Now().Add(-retention))
		if err != nil {
			slog.Warn("failed to prune journal", "error", err)
		} else if removed > 0 {
			slog.Info("pruned journal", "removed", removed, "retention", retention)
		}
	}

	n, err := st.Publishes().Count()
	if err != nil {
		slog.Warn("failed to count journal entries", "error", err)
		return
	}
	slog.Info("journaling publishes", "path", st.Path(), "entries", n)
}

// dryRunTransport logs what would have been published.
type dryRunTransport struct{}

func (dryRunTransport) Publish(topic string, payload []byte) error {
	slog.Info("dry run publish", "topic", topic, "payload", fmt.Sprintf("%q", payload))
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mudra.yaml"
	}
	return filepath.Join(home, ".mudra", "config.yaml")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
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

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func statusURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/api/status"
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
		slog.Warn("failed to open browser", "url", url, "error", err)
	}
}
