// Command skald-server runs the heavy half of the assistant: it accepts
// WebSocket clients and drives the transcribe, complete, and synthesize
// pipeline for each utterance they send.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/skald-ai/skald/internal/config"
	"github.com/skald-ai/skald/internal/health"
	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/internal/observe"
	"github.com/skald-ai/skald/internal/server"
	"github.com/skald-ai/skald/internal/sttfilter"
	"github.com/skald-ai/skald/pkg/provider/llm"
	"github.com/skald-ai/skald/pkg/provider/llm/anyllm"
	"github.com/skald-ai/skald/pkg/provider/llm/openrouter"
	"github.com/skald-ai/skald/pkg/provider/stt"
	"github.com/skald-ai/skald/pkg/provider/stt/whisper"
	"github.com/skald-ai/skald/pkg/provider/stt/whisperhttp"
	"github.com/skald-ai/skald/pkg/provider/tts"
	"github.com/skald-ai/skald/pkg/provider/tts/kokoro"
	"github.com/skald-ai/skald/pkg/provider/tts/piper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	host := flag.String("host", "", "override the listen host from the config")
	port := flag.Int("port", 0, "override the listen port from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "skald-server: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "skald-server: %v\n", err)
		}
		return 1
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("skald server starting",
		"config", *configPath,
		"listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"stt_engine", cfg.STT.Engine,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"tts_engine", cfg.TTS.Engine,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "skald"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metricsLog := metrics.NewLogger(cfg.Metrics.Enabled, cfg.Metrics.File, cfg.Metrics.FlushInterval)
	defer metricsLog.Close()

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		slog.Error("failed to create stt engine", "err", err)
		return 1
	}
	llmClient, err := newLLMClient(cfg)
	if err != nil {
		slog.Error("failed to create llm client", "err", err)
		return 1
	}
	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		slog.Error("failed to create tts engine", "err", err)
		return 1
	}

	srv := server.New(
		server.ServerConfig{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			MetricsAddr:    cfg.Server.MetricsAddr,
			HealthCheckers: sidecarCheckers(cfg),
			Handler: server.HandlerConfig{
				MismatchRejectRatio: cfg.Protocol.AudioMismatchRejectRatio,
				STTLanguage:         cfg.STT.Language,
				DefaultLanguage:     cfg.TTS.DefaultLanguage,
				MaxTurns:            cfg.Conversation.MaxTurns,
				MaxTokensBudget:     cfg.Conversation.MaxTokensBudget,
				WarmupEnabled:       cfg.LLM.WarmupEnabled,
				LogTranscripts:      cfg.Metrics.LogTranscripts,
				LogLLMText:          cfg.Metrics.LogLLMText,
			},
		},
		server.Providers{STT: transcriber, LLM: llmClient, TTS: synthesizer},
		sttfilter.New(cfg.STT.NoSpeechThreshold, cfg.STT.LogprobThreshold),
		metricsLog,
		observe.DefaultMetrics(),
	)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// sidecarCheckers builds readiness probes for the HTTP speech sidecars the
// configuration points at. Native engines have no sidecar to probe.
func sidecarCheckers(cfg *config.Config) []health.Checker {
	var checkers []health.Checker
	if cfg.STT.Engine == "whisper-http" && cfg.STT.BaseURL != "" {
		checkers = append(checkers, health.Sidecar("stt", cfg.STT.BaseURL))
	}
	if cfg.TTS.BaseURL != "" {
		checkers = append(checkers, health.Sidecar("tts", cfg.TTS.BaseURL))
	}
	if cfg.TTS.FallbackBaseURL != "" {
		checkers = append(checkers, health.Sidecar("tts_fallback", cfg.TTS.FallbackBaseURL))
	}
	return checkers
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STT.Engine {
	case "whisper-native", "":
		return whisper.New(cfg.STT.ModelPath)
	case "whisper-http":
		return whisperhttp.New(cfg.STT.BaseURL)
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.STT.Engine)
	}
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.Provider == "openrouter" || cfg.LLM.Provider == "" {
		opts := []openrouter.Option{
			openrouter.WithMaxTokens(cfg.LLM.MaxTokens),
			openrouter.WithTemperature(cfg.LLM.Temperature),
			openrouter.WithWebSearch(cfg.LLM.WebSearch),
			openrouter.WithTimeout(seconds(cfg.LLM.TimeoutS)),
			openrouter.WithMaxRetries(cfg.LLM.MaxRetries),
			openrouter.WithRetryBaseDelay(seconds(cfg.LLM.RetryBaseDelayS)),
		}
		if cfg.LLM.APIBase != "" {
			opts = append(opts, openrouter.WithAPIBase(cfg.LLM.APIBase))
		}
		return openrouter.New(cfg.LLM.Model, opts...)
	}

	var libOpts []anyllmlib.Option
	if cfg.LLM.APIBase != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(cfg.LLM.APIBase))
	}
	client, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, libOpts...)
	if err != nil {
		return nil, err
	}
	return client.Configure(
		anyllm.WithMaxTokens(cfg.LLM.MaxTokens),
		anyllm.WithTemperature(cfg.LLM.Temperature),
	), nil
}

func newSynthesizer(cfg *config.Config) (tts.Engine, error) {
	piperVoices := make(map[string]string)
	kokoroVoices := make(map[string]string)
	for lang, voice := range cfg.TTS.Voices {
		if voice.PiperVoice != "" {
			piperVoices[lang] = voice.PiperVoice
		}
		if voice.KokoroVoice != "" {
			kokoroVoices[lang] = voice.KokoroVoice
		}
	}

	switch cfg.TTS.Engine {
	case "piper", "":
		return piper.New(cfg.TTS.BaseURL,
			piper.WithVoices(piperVoices),
			piper.WithDefaultLanguage(cfg.TTS.DefaultLanguage),
			piper.WithSentenceSilence(cfg.TTS.SentenceSilence))
	case "kokoro":
		opts := []kokoro.Option{
			kokoro.WithVoices(kokoroVoices),
			kokoro.WithDefaultLanguage(cfg.TTS.DefaultLanguage),
			kokoro.WithSentenceSilence(cfg.TTS.SentenceSilence),
		}
		if cfg.TTS.FallbackBaseURL != "" {
			fallback, err := piper.New(cfg.TTS.FallbackBaseURL,
				piper.WithVoices(piperVoices),
				piper.WithDefaultLanguage(cfg.TTS.DefaultLanguage),
				piper.WithSentenceSilence(cfg.TTS.SentenceSilence))
			if err != nil {
				return nil, fmt.Errorf("create piper fallback: %w", err)
			}
			opts = append(opts, kokoro.WithFallback(fallback))
		}
		return kokoro.New(cfg.TTS.BaseURL, opts...)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.TTS.Engine)
	}
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

// seconds converts a float second count from configuration to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
