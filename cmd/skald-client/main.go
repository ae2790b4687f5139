// Command skald-client runs the wake word listener on the device with the
// microphone and speaker. It connects to a skald-server instance for
// transcription, language model, and speech synthesis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/skald-ai/skald/internal/client"
	"github.com/skald-ai/skald/internal/config"
	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/pkg/provider/vad"
	"github.com/skald-ai/skald/pkg/provider/vad/energy"
	"github.com/skald-ai/skald/pkg/provider/vad/silero"
	"github.com/skald-ai/skald/pkg/provider/wake/openwake"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serverAddr := flag.String("server", "", "override the server host:port from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "skald-client: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "skald-client: %v\n", err)
		}
		return 1
	}
	if *serverAddr != "" {
		if err := applyServerOverride(cfg, *serverAddr); err != nil {
			fmt.Fprintf(os.Stderr, "skald-client: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("skald client starting",
		"config", *configPath,
		"server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"wake_model", cfg.Wake.ModelName,
		"vad_engine", cfg.VAD.Engine,
		"barge_in", cfg.VAD.BargeInEnabled,
	)

	// ── Detection backends ────────────────────────────────────────────────────
	wakeDetector, err := openwake.New(cfg.Wake.BaseURL, cfg.Wake.Threshold,
		openwake.WithModelName(cfg.Wake.ModelName))
	if err != nil {
		slog.Error("failed to create wake detector", "err", err)
		return 1
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		slog.Error("failed to create VAD classifier", "err", err)
		return 1
	}
	defer classifier.Close()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsLog := metrics.NewLogger(cfg.Metrics.Enabled, cfg.Metrics.File, cfg.Metrics.FlushInterval)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := client.New(cfg, wakeDetector, classifier, metricsLog)
	if err != nil {
		slog.Error("failed to initialise client", "err", err)
		return 1
	}

	slog.Info("client ready — press Ctrl+C to shut down")

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newClassifier builds the VAD backend named in the configuration.
func newClassifier(cfg *config.Config) (vad.Classifier, error) {
	switch cfg.VAD.Engine {
	case "silero":
		return silero.New(cfg.VAD.ModelPath, cfg.Audio.SampleRate,
			silero.WithThreshold(float32(cfg.VAD.Aggressiveness)))
	case "energy", "":
		return energy.New(cfg.Audio.SampleRate, cfg.VAD.FrameDurationMs,
			energy.WithThreshold(cfg.VAD.EnergyThreshold))
	default:
		return nil, fmt.Errorf("unknown vad engine %q", cfg.VAD.Engine)
	}
}

// applyServerOverride replaces the configured server address with host:port
// from the command line.
func applyServerOverride(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --server %q (want host:port): %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --server port %q: %w", portStr, err)
	}
	cfg.Server.Host = host
	cfg.Server.Port = port
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
