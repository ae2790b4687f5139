package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/pkg/audio"
	"github.com/skald-ai/skald/pkg/provider/wake"
	"github.com/skald-ai/skald/pkg/wire"
)

// recentFrameMax bounds the rolling frame buffers used to carry pre-onset
// audio across the barge-in and follow-up transitions.
const recentFrameMax = 25

// captureRestartInterval spaces out reopen attempts after device loss.
const captureRestartInterval = time.Second

// State is the interaction phase of the assistant.
type State int

const (
	// StatePassive scans capture frames for the wake word.
	StatePassive State = iota
	// StateListening segments the user's utterance.
	StateListening
	// StateWaiting has sent the utterance and awaits the response.
	StateWaiting
	// StateSpeaking plays the streamed response, watching for barge-in.
	StateSpeaking
	// StateFollowUp keeps the microphone open briefly after a response.
	StateFollowUp
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StatePassive:
		return "passive"
	case StateListening:
		return "listening"
	case StateWaiting:
		return "waiting"
	case StateSpeaking:
		return "speaking"
	case StateFollowUp:
		return "follow_up"
	}
	return "unknown"
}

// serverLink is the outbound half of the server connection plus its inbound
// message stream. *Connection satisfies it.
type serverLink interface {
	SendWake(score float64)
	SendUtterance(samples []int16, sampleRate int)
	SendBargeIn()
	SendFollowUpTimeout()
	Messages() <-chan any
	Connected() bool
}

// frameSource delivers capture frames. *audio.Capture satisfies it.
type frameSource interface {
	Frame(timeout time.Duration) []int16
	Healthy() bool
	Restart() error
	ConsumeDropped() int64
}

// responsePlayer plays a streamed response. *chunkPlayer satisfies it.
type responsePlayer interface {
	StartStream()
	Enqueue(samples []int16, sampleRate int)
	FinishStream()
	Cancel()
	IsPlaying() bool
}

// cuePlayer plays named earcons. *earconCues satisfies it.
type cuePlayer interface {
	Play(name string)
}

// speechClassifier answers whether one frame contains speech.
// *audio.SpeechDetector satisfies it.
type speechClassifier interface {
	IsSpeech(frame []int16) bool
}

// utteranceSegmenter accumulates one utterance. *audio.UtteranceDetector
// satisfies it.
type utteranceSegmenter interface {
	Process(frame []int16) audio.UtteranceState
	State() audio.UtteranceState
	Seed(frames [][]int16)
	Audio() []int16
	Reset()
}

// StateMachineConfig tunes the interaction loop. Zero values take the
// documented defaults.
type StateMachineConfig struct {
	SampleRate        int
	FrameTimeout      time.Duration
	CaptureDropReport time.Duration
	ListeningTimeout  time.Duration
	MaxUtterance      time.Duration
	SpeechOnsetFrames int
	BargeInEnabled    bool
	BargeInFrames     int
	BargeInGrace      time.Duration
	FollowUpWindow    time.Duration
	FollowUpGrace     time.Duration
}

func (c *StateMachineConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 50 * time.Millisecond
	}
	if c.CaptureDropReport <= 0 {
		c.CaptureDropReport = 5 * time.Second
	}
	if c.ListeningTimeout <= 0 {
		c.ListeningTimeout = 8 * time.Second
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = 30 * time.Second
	}
	if c.SpeechOnsetFrames <= 0 {
		c.SpeechOnsetFrames = 2
	}
	if c.BargeInFrames <= 0 {
		c.BargeInFrames = 8
	}
	if c.BargeInGrace <= 0 {
		c.BargeInGrace = time.Second
	}
	if c.FollowUpWindow <= 0 {
		c.FollowUpWindow = 7 * time.Second
	}
	if c.FollowUpGrace <= 0 {
		c.FollowUpGrace = 300 * time.Millisecond
	}
}

// bufferedFrame pairs a capture frame with its speech classification so the
// barge-in buffer does not re-run the classifier on replay.
type bufferedFrame struct {
	frame    []int16
	isSpeech bool
}

// StateMachine drives the wake, listen, wait, speak, follow-up cycle. It is
// single-goroutine: Run owns all state.
type StateMachine struct {
	cfg StateMachineConfig

	link      serverLink
	capture   frameSource
	player    responsePlayer
	cues      cuePlayer
	wake      wake.Detector
	speech    speechClassifier
	utterance utteranceSegmenter
	metrics   *metrics.Logger

	state State

	softStart     time.Time // refreshed while collecting; soft listening cap
	hardStart     time.Time // fixed at listen entry; hard utterance cap
	speakingStart time.Time

	bargeCount int
	recent     []bufferedFrame

	followUpStart    time.Time
	followUpDeadline time.Time
	followUpCount    int
	followUpFrames   [][]int16

	lastDropReport time.Time
	lastRestart    time.Time

	now func() time.Time
}

func newStateMachine(
	cfg StateMachineConfig,
	link serverLink,
	capture frameSource,
	player responsePlayer,
	cues cuePlayer,
	wakeDetector wake.Detector,
	speech speechClassifier,
	utterance utteranceSegmenter,
	metricsLog *metrics.Logger,
) *StateMachine {
	cfg.applyDefaults()
	return &StateMachine{
		cfg:       cfg,
		link:      link,
		capture:   capture,
		player:    player,
		cues:      cues,
		wake:      wakeDetector,
		speech:    speech,
		utterance: utterance,
		metrics:   metricsLog,
		state:     StatePassive,
		now:       time.Now,
	}
}

// State returns the current interaction phase.
func (m *StateMachine) State() State { return m.state }

// Run executes the interaction loop until ctx is cancelled.
func (m *StateMachine) Run(ctx context.Context) error {
	slog.Info("assistant ready, waiting for wake word")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.tick(ctx)
	}
}

// tick runs one iteration: report drops, verify capture health, drain server
// messages, then feed one frame through the current state.
func (m *StateMachine) tick(ctx context.Context) {
	m.reportDroppedFrames()

	if !m.capture.Healthy() {
		m.handleCaptureLoss(ctx)
		return
	}

	m.drainMessages()

	frame := m.capture.Frame(m.cfg.FrameTimeout)
	if frame == nil {
		// Timers still have to fire without audio.
		if m.state == StateFollowUp {
			m.checkFollowUpDeadline()
		}
		return
	}

	switch m.state {
	case StatePassive:
		m.handlePassive(frame)
	case StateListening:
		m.handleListening(frame)
	case StateWaiting:
		// The response pipeline owns this phase; frames are discarded.
	case StateSpeaking:
		m.handleSpeaking(frame)
	case StateFollowUp:
		m.handleFollowUp(frame)
	}
}

func (m *StateMachine) reportDroppedFrames() {
	now := m.now()
	if now.Sub(m.lastDropReport) < m.cfg.CaptureDropReport {
		return
	}
	m.lastDropReport = now
	if n := m.capture.ConsumeDropped(); n > 0 {
		slog.Warn("capture frames dropped", "count", n)
		m.metrics.Log("audio_frame_drop", map[string]any{"dropped_frames": n})
	}
}

// handleCaptureLoss parks the machine in passive and retries the device at
// most once per second.
func (m *StateMachine) handleCaptureLoss(ctx context.Context) {
	if m.state != StatePassive {
		slog.Warn("capture device lost, returning to passive")
		m.setState(StatePassive)
	}
	now := m.now()
	if now.Sub(m.lastRestart) >= captureRestartInterval {
		m.lastRestart = now
		if err := m.capture.Restart(); err != nil {
			slog.Warn("capture restart failed", "error", err)
		} else {
			slog.Info("capture device recovered")
			return
		}
	}
	m.drainMessages()
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
	}
}

func (m *StateMachine) drainMessages() {
	for {
		select {
		case msg := <-m.link.Messages():
			m.handleServerMessage(msg)
		default:
			return
		}
	}
}

func (m *StateMachine) handleServerMessage(msg any) {
	switch v := msg.(type) {
	case *wire.WarmupAck:
		slog.Debug("server acknowledged wake")

	case *wire.Status:
		slog.Debug("pipeline status", "stage", v.Stage)

	case *wire.STTRejected:
		slog.Info("utterance rejected", "reason", v.Reason)
		if m.state == StateWaiting {
			m.enterFollowUp()
		}

	case *TTSChunk:
		if m.state == StateWaiting {
			m.player.StartStream()
			m.bargeCount = 0
			m.recent = nil
			m.speakingStart = m.now()
			m.setState(StateSpeaking)
		}
		m.player.Enqueue(v.Samples, v.Meta.SampleRate)
		if v.Meta.IsLast {
			m.player.FinishStream()
		}

	case *wire.TTSDone:
		m.player.FinishStream()
		if !v.Cancelled && m.state == StateWaiting {
			// The whole response synthesized to nothing.
			m.enterFollowUp()
		}

	case *wire.SessionCleared:
		slog.Debug("server cleared conversation history")

	case *wire.Error:
		slog.Warn("server reported error",
			"message", v.Message, "stage", v.Stage, "code", v.Code)
		m.cues.Play("error")
		if m.state == StateWaiting {
			m.enterFollowUp()
		}

	default:
		slog.Debug("ignoring unexpected server message", "type", fmt.Sprintf("%T", msg))
	}
}

func (m *StateMachine) handlePassive(frame []int16) {
	detected, score, err := m.wake.Process(frame)
	if err != nil {
		slog.Warn("wake detection failed", "error", err)
		return
	}
	if !detected {
		return
	}
	slog.Info("wake word detected", "score", score)
	m.wake.Reset()
	m.cues.Play("wake")
	m.link.SendWake(score)
	m.metrics.Log("wake_detected", map[string]any{"score": score})

	m.utterance.Reset()
	now := m.now()
	m.softStart = now
	m.hardStart = now
	m.setState(StateListening)
}

func (m *StateMachine) handleListening(frame []int16) {
	now := m.now()

	if now.Sub(m.hardStart) > m.cfg.MaxUtterance {
		if m.utterance.State() == audio.UtteranceCollecting {
			// Ship what we have rather than discarding a long question.
			slog.Info("utterance hit the hard cap, sending partial audio")
			m.sendUtterance()
		} else {
			m.abandonListening()
		}
		return
	}

	if m.utterance.State() == audio.UtteranceCollecting {
		m.softStart = now
	} else if now.Sub(m.softStart) > m.cfg.ListeningTimeout {
		m.abandonListening()
		return
	}

	if m.utterance.Process(frame) == audio.UtteranceComplete {
		m.sendUtterance()
	}
}

func (m *StateMachine) sendUtterance() {
	m.cues.Play("heard")
	samples := m.utterance.Audio()
	slog.Info("utterance captured",
		"samples", len(samples),
		"duration_s", float64(len(samples))/float64(m.cfg.SampleRate))
	m.link.SendUtterance(samples, m.cfg.SampleRate)
	m.setState(StateWaiting)
}

// abandonListening gives up on hearing speech and tells the server to clear
// the session it opened at wake.
func (m *StateMachine) abandonListening() {
	slog.Info("no speech detected, going back to sleep")
	m.cues.Play("goodbye")
	m.link.SendFollowUpTimeout()
	m.metrics.Log("listening_timeout", nil)
	m.setState(StatePassive)
}

func (m *StateMachine) handleSpeaking(frame []int16) {
	if !m.player.IsPlaying() {
		m.enterFollowUp()
		return
	}
	if !m.cfg.BargeInEnabled {
		return
	}
	if m.now().Sub(m.speakingStart) < m.cfg.BargeInGrace {
		return
	}

	isSpeech := m.speech.IsSpeech(frame)
	m.recent = append(m.recent, bufferedFrame{frame: frame, isSpeech: isSpeech})
	if len(m.recent) > recentFrameMax {
		m.recent = m.recent[len(m.recent)-recentFrameMax:]
	}

	if !isSpeech {
		m.bargeCount = 0
		return
	}
	m.bargeCount++
	if m.bargeCount < m.cfg.BargeInFrames {
		return
	}

	slog.Info("barge-in detected, cancelling response")
	m.player.Cancel()
	m.link.SendBargeIn()
	m.metrics.Log("barge_in", nil)

	m.utterance.Reset()
	m.utterance.Seed(framesOf(m.recent))
	m.recent = nil
	m.bargeCount = 0

	now := m.now()
	m.softStart = now
	m.hardStart = now
	m.setState(StateListening)
}

func (m *StateMachine) handleFollowUp(frame []int16) {
	now := m.now()
	if now.After(m.followUpDeadline) {
		m.closeFollowUp()
		return
	}

	m.followUpFrames = append(m.followUpFrames, frame)
	if len(m.followUpFrames) > recentFrameMax {
		m.followUpFrames = m.followUpFrames[len(m.followUpFrames)-recentFrameMax:]
	}

	// The tail of the response can bleed into the microphone right after
	// playback ends.
	if now.Sub(m.followUpStart) < m.cfg.FollowUpGrace {
		return
	}

	if !m.speech.IsSpeech(frame) {
		m.followUpCount = 0
		return
	}
	m.followUpCount++
	if m.followUpCount < m.cfg.SpeechOnsetFrames {
		return
	}

	slog.Info("follow-up speech detected")
	m.utterance.Reset()
	m.utterance.Seed(m.followUpFrames)
	m.followUpFrames = nil
	m.followUpCount = 0

	m.softStart = now
	m.hardStart = now
	m.setState(StateListening)
}

func (m *StateMachine) checkFollowUpDeadline() {
	if m.now().After(m.followUpDeadline) {
		m.closeFollowUp()
	}
}

func (m *StateMachine) closeFollowUp() {
	slog.Info("follow-up window closed")
	m.cues.Play("goodbye")
	m.link.SendFollowUpTimeout()
	m.setState(StatePassive)
}

func (m *StateMachine) enterFollowUp() {
	m.followUpDeadline = m.now().Add(m.cfg.FollowUpWindow)
	m.followUpCount = 0
	m.followUpFrames = nil
	m.cues.Play("ready")
	// Grace starts after the cue so the cue itself is never taken as speech.
	m.followUpStart = m.now()
	m.setState(StateFollowUp)
}

func (m *StateMachine) setState(s State) {
	if m.state == s {
		return
	}
	slog.Debug("state transition", "from", m.state, "to", s)
	m.state = s
}

func framesOf(buffered []bufferedFrame) [][]int16 {
	out := make([][]int16, len(buffered))
	for i, bf := range buffered {
		out[i] = bf.frame
	}
	return out
}
