package client

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skald-ai/skald/internal/config"
	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/pkg/audio"
	"github.com/skald-ai/skald/pkg/provider/vad"
	"github.com/skald-ai/skald/pkg/provider/wake"
)

// App owns the client side of the assistant: microphone capture, playback,
// the server connection, and the state machine tying them together.
type App struct {
	capture *audio.Capture
	player  *audio.Player
	conn    *Connection
	machine *StateMachine
	metrics *metrics.Logger
}

// New wires a client from configuration and the injected detection backends.
// The caller provides the wake detector and VAD classifier since their
// construction depends on engine selection and external sidecars.
func New(cfg *config.Config, wakeDetector wake.Detector, classifier vad.Classifier, metricsLog *metrics.Logger) (*App, error) {
	ring := audio.NewRing(cfg.Audio.RingBufferSeconds, cfg.Audio.SampleRate)
	capture, err := audio.NewCapture(audio.CaptureConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Blocksize:  cfg.Audio.Blocksize,
		Ring:       ring,
	})
	if err != nil {
		return nil, fmt.Errorf("client: open capture: %w", err)
	}

	player, err := audio.NewPlayer()
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("client: open playback: %w", err)
	}

	conn := NewConnection(ConnectionConfig{
		URL:          fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port),
		ReconnectMin: seconds(cfg.Server.ReconnectMinS),
		ReconnectMax: seconds(cfg.Server.ReconnectMaxS),
		OutboxSize:   cfg.Server.OfflineSendBufferSize,
		OutboxTTL:    seconds(cfg.Server.OfflineSendTTLS),
	})

	speech := audio.NewSpeechDetector(classifier, cfg.VAD.EnergyThreshold)
	utterance := audio.NewUtteranceDetector(speech,
		cfg.VAD.SpeechOnsetFrames,
		time.Duration(cfg.VAD.SilenceTimeoutMs)*time.Millisecond)

	machine := newStateMachine(
		StateMachineConfig{
			SampleRate:        cfg.Audio.SampleRate,
			CaptureDropReport: seconds(cfg.Audio.CaptureDropReportS),
			ListeningTimeout:  seconds(cfg.VAD.ListeningTimeoutS),
			MaxUtterance:      seconds(cfg.VAD.MaxUtteranceS),
			SpeechOnsetFrames: cfg.VAD.SpeechOnsetFrames,
			BargeInEnabled:    cfg.VAD.BargeInEnabled,
			BargeInFrames:     cfg.VAD.BargeInFrames,
			BargeInGrace:      seconds(cfg.VAD.BargeInGraceS),
			FollowUpWindow:    seconds(cfg.Conversation.FollowUpWindowS),
			FollowUpGrace:     seconds(cfg.VAD.FollowUpGraceS),
		},
		conn,
		capture,
		newChunkPlayer(player),
		newEarconCues(player, cfg.Earcon.Volume),
		wakeDetector,
		speech,
		utterance,
		metricsLog,
	)

	return &App{
		capture: capture,
		player:  player,
		conn:    conn,
		machine: machine,
		metrics: metricsLog,
	}, nil
}

// Run drives the connection and the state machine until ctx is cancelled,
// then releases the audio devices.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.conn.Run(ctx) })
	g.Go(func() error { return a.machine.Run(ctx) })
	return g.Wait()
}

// Close releases the audio devices and flushes metrics.
func (a *App) Close() {
	a.capture.Close()
	a.player.Close()
	a.metrics.Close()
}

// seconds converts a float second count from configuration to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
