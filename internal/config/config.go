// Package config provides the configuration schema and loader for the
// voice assistant client and server.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, shared by the client and the
// server. It is typically loaded from a YAML file using [Load] or
// [LoadFromReader].
type Config struct {
	Audio        AudioConfig        `yaml:"audio"`
	VAD          VADConfig          `yaml:"vad"`
	Earcon       EarconConfig       `yaml:"earcon"`
	Wake         WakeConfig         `yaml:"wake"`
	STT          STTConfig          `yaml:"stt"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	Conversation ConversationConfig `yaml:"conversation"`
	Server       ServerConfig       `yaml:"server"`
	Protocol     ProtocolConfig     `yaml:"protocol"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. The wake and STT models expect
	// 16 kHz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count. Only channel 0 is used.
	Channels int `yaml:"channels"`

	// Blocksize is the number of samples per capture frame.
	Blocksize int `yaml:"blocksize"`

	// RingBufferSeconds sizes the rolling pre-wake audio buffer.
	RingBufferSeconds float64 `yaml:"ring_buffer_seconds"`

	// CaptureDropReportS is the minimum interval between dropped-frame
	// reports.
	CaptureDropReportS float64 `yaml:"capture_drop_report_s"`
}

// VADConfig holds voice activity detection and utterance segmentation
// settings.
type VADConfig struct {
	// Engine selects the classifier: "energy" or "silero".
	Engine string `yaml:"engine"`

	// ModelPath is the silero ONNX model path. Ignored by the energy engine.
	ModelPath string `yaml:"model_path"`

	// Aggressiveness tunes the silero threshold.
	Aggressiveness float64 `yaml:"aggressiveness"`

	// FrameDurationMs is the classifier window in milliseconds.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// EnergyThreshold is the RMS gate below which frames are silence.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceTimeoutMs ends an utterance after this much trailing silence.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// SpeechOnsetFrames is the number of consecutive speech frames that
	// start an utterance.
	SpeechOnsetFrames int `yaml:"speech_onset_frames"`

	// BargeInEnabled lets speech during playback cancel the response.
	BargeInEnabled bool `yaml:"barge_in_enabled"`

	// BargeInFrames is the number of recent speech frames that trigger a
	// barge-in.
	BargeInFrames int `yaml:"barge_in_frames"`

	// BargeInGraceS suppresses barge-in detection right after playback
	// starts, so the assistant does not interrupt itself.
	BargeInGraceS float64 `yaml:"barge_in_grace_s"`

	// FollowUpGraceS delays follow-up listening after playback ends.
	FollowUpGraceS float64 `yaml:"follow_up_grace_s"`

	// ListeningTimeoutS is the soft cap on waiting for speech to start.
	ListeningTimeoutS float64 `yaml:"listening_timeout_s"`

	// MaxUtteranceS is the hard cap on a single utterance.
	MaxUtteranceS float64 `yaml:"max_utterance_s"`
}

// EarconConfig holds audible cue settings.
type EarconConfig struct {
	Frequency float64 `yaml:"frequency"`
	DurationS float64 `yaml:"duration_s"`
	Volume    float64 `yaml:"volume"`
}

// WakeConfig holds wake word detection settings.
type WakeConfig struct {
	// BaseURL is the wake word scoring sidecar endpoint.
	BaseURL string `yaml:"base_url"`

	// ModelName selects the wake word model on the sidecar.
	ModelName string `yaml:"model_name"`

	// Threshold is the minimum score that counts as a detection.
	Threshold float64 `yaml:"threshold"`
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	// Engine selects the transcriber: "whisper-native" or "whisper-http".
	Engine string `yaml:"engine"`

	// ModelPath is the whisper.cpp model file for the native engine.
	ModelPath string `yaml:"model_path"`

	// BaseURL is the faster-whisper server for the HTTP engine.
	BaseURL string `yaml:"base_url"`

	// ModelSize, Device, and ComputeType are forwarded to the HTTP engine's
	// server configuration.
	ModelSize   string `yaml:"model_size"`
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`

	// Language forces a transcription language. Empty lets the model detect.
	Language string `yaml:"language"`

	// NoSpeechThreshold rejects transcripts whose no-speech probability is
	// at or above this value.
	NoSpeechThreshold float64 `yaml:"no_speech_threshold"`

	// LogprobThreshold rejects transcripts whose average token log
	// probability is below this value.
	LogprobThreshold float64 `yaml:"logprob_threshold"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	// Provider selects the backend: "openrouter" or any name supported by
	// the any-llm registry ("openai", "anthropic", "ollama", ...).
	Provider string `yaml:"provider"`

	// Model is the model identifier.
	Model string `yaml:"model"`

	// APIBase overrides the provider's default endpoint.
	APIBase string `yaml:"api_base"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// WebSearch enables the OpenRouter web plugin.
	WebSearch bool `yaml:"web_search"`

	// WarmupEnabled fires a one-token request at startup.
	WarmupEnabled bool `yaml:"warmup_enabled"`

	// TimeoutS is the per-attempt request timeout.
	TimeoutS float64 `yaml:"timeout_s"`

	// MaxRetries is the number of additional attempts after a retryable
	// failure.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelayS is the backoff base delay in seconds.
	RetryBaseDelayS float64 `yaml:"retry_base_delay_s"`
}

// TTSConfig holds speech synthesis settings.
type TTSConfig struct {
	// Engine selects the backend: "piper" or "kokoro".
	Engine string `yaml:"engine"`

	// BaseURL is the synthesis server endpoint.
	BaseURL string `yaml:"base_url"`

	// FallbackBaseURL is the Piper server used for languages Kokoro cannot
	// render. Only meaningful with the kokoro engine.
	FallbackBaseURL string `yaml:"fallback_base_url"`

	// DefaultLanguage is used when detection yields nothing better.
	DefaultLanguage string `yaml:"default_language"`

	// Voices maps language tags to voice names.
	Voices map[string]VoiceConfig `yaml:"voices"`

	// SentenceSilence is the pause in seconds between sentences.
	SentenceSilence float64 `yaml:"sentence_silence"`
}

// VoiceConfig names the per-engine voices for one language.
type VoiceConfig struct {
	PiperVoice  string `yaml:"piper_voice"`
	KokoroVoice string `yaml:"kokoro_voice"`
}

// ConversationConfig holds session history settings.
type ConversationConfig struct {
	// MaxTurns caps the stored user/assistant exchanges.
	MaxTurns int `yaml:"max_turns"`

	// MaxTokensBudget caps the estimated token usage of the history.
	MaxTokensBudget int `yaml:"max_tokens_budget"`

	// FollowUpWindowS keeps the microphone open for a follow-up question
	// after a response.
	FollowUpWindowS float64 `yaml:"follow_up_window_s"`
}

// ServerConfig holds connection settings. The client uses Host/Port to
// reach the server; the server uses them to listen.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`

	// ReconnectMinS and ReconnectMaxS bound the client's exponential
	// reconnect backoff.
	ReconnectMinS float64 `yaml:"reconnect_min_s"`
	ReconnectMaxS float64 `yaml:"reconnect_max_s"`

	// OfflineSendBufferSize caps control messages queued while disconnected.
	OfflineSendBufferSize int `yaml:"offline_send_buffer_size"`

	// OfflineSendTTLS expires queued control messages after this many
	// seconds.
	OfflineSendTTLS float64 `yaml:"offline_send_ttl_s"`
}

// ProtocolConfig holds wire protocol validation settings.
type ProtocolConfig struct {
	// AudioMismatchRejectRatio rejects utterance audio whose declared and
	// actual sample counts differ by more than this fraction. Clamped to
	// [0, 1].
	AudioMismatchRejectRatio float64 `yaml:"audio_mismatch_reject_ratio"`
}

// MetricsConfig holds JSONL telemetry settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`

	// FlushInterval flushes the buffer every N events.
	FlushInterval int `yaml:"flush_interval"`

	// LogTranscripts and LogLLMText opt into recording raw text instead of
	// character counts.
	LogTranscripts bool `yaml:"log_transcripts"`
	LogLLMText     bool `yaml:"log_llm_text"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:         16000,
			Channels:           1,
			Blocksize:          1280,
			RingBufferSeconds:  3.0,
			CaptureDropReportS: 5.0,
		},
		VAD: VADConfig{
			Engine:            "energy",
			FrameDurationMs:   30,
			EnergyThreshold:   300,
			SilenceTimeoutMs:  800,
			SpeechOnsetFrames: 2,
			BargeInEnabled:    false,
			BargeInFrames:     8,
			BargeInGraceS:     1.0,
			FollowUpGraceS:    0.3,
			ListeningTimeoutS: 8.0,
			MaxUtteranceS:     30.0,
		},
		Earcon: EarconConfig{
			Frequency: 880,
			DurationS: 0.15,
			Volume:    0.3,
		},
		Wake: WakeConfig{
			ModelName: "hey_jarvis",
			Threshold: 0.5,
		},
		STT: STTConfig{
			Engine:            "whisper-native",
			ModelSize:         "base",
			Device:            "cpu",
			ComputeType:       "int8",
			NoSpeechThreshold: 0.6,
			LogprobThreshold:  -1.0,
		},
		LLM: LLMConfig{
			Provider:        "openrouter",
			MaxTokens:       256,
			Temperature:     0.7,
			WarmupEnabled:   true,
			TimeoutS:        30,
			MaxRetries:      2,
			RetryBaseDelayS: 0.25,
		},
		TTS: TTSConfig{
			Engine:          "piper",
			DefaultLanguage: "en",
			SentenceSilence: 0.2,
		},
		Conversation: ConversationConfig{
			MaxTurns:        10,
			MaxTokensBudget: 2000,
			FollowUpWindowS: 7.0,
		},
		Server: ServerConfig{
			Host:                  "localhost",
			Port:                  8765,
			LogLevel:              LogInfo,
			ReconnectMinS:         1.0,
			ReconnectMaxS:         30.0,
			OfflineSendBufferSize: 200,
			OfflineSendTTLS:       5.0,
		},
		Protocol: ProtocolConfig{
			AudioMismatchRejectRatio: 0.2,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			File:          "metrics.jsonl",
			FlushInterval: 10,
		},
	}
}
