package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Known engine and provider names, used by [Validate].
var (
	validVADEngines   = []string{"energy", "silero"}
	validSTTEngines   = []string{"whisper-native", "whisper-http"}
	validTTSEngines   = []string{"piper", "kokoro"}
	validLLMProviders = []string{
		"openrouter", "openai", "anthropic", "gemini", "ollama",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	}
)

// Load reads the YAML configuration file at path, layered over [Default],
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Unknown YAML keys are an error; silent typos in a
// latency-tuning config are worse than a startup failure.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.Blocksize <= 0 {
		errs = append(errs, fmt.Errorf("audio.blocksize must be positive, got %d", cfg.Audio.Blocksize))
	}

	if !slices.Contains(validVADEngines, cfg.VAD.Engine) {
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: %v", cfg.VAD.Engine, validVADEngines))
	}
	if cfg.VAD.Engine == "silero" && cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required with the silero engine"))
	}
	if cfg.VAD.MaxUtteranceS <= 0 {
		errs = append(errs, fmt.Errorf("vad.max_utterance_s must be positive, got %v", cfg.VAD.MaxUtteranceS))
	}

	if !slices.Contains(validSTTEngines, cfg.STT.Engine) {
		errs = append(errs, fmt.Errorf("stt.engine %q is invalid; valid values: %v", cfg.STT.Engine, validSTTEngines))
	}
	if cfg.STT.Engine == "whisper-native" && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required with the whisper-native engine"))
	}
	if cfg.STT.Engine == "whisper-http" && cfg.STT.BaseURL == "" {
		errs = append(errs, errors.New("stt.base_url is required with the whisper-http engine"))
	}

	if !slices.Contains(validLLMProviders, cfg.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q is invalid; valid values: %v", cfg.LLM.Provider, validLLMProviders))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must not be negative, got %d", cfg.LLM.MaxRetries))
	}

	if !slices.Contains(validTTSEngines, cfg.TTS.Engine) {
		errs = append(errs, fmt.Errorf("tts.engine %q is invalid; valid values: %v", cfg.TTS.Engine, validTTSEngines))
	}
	if cfg.TTS.BaseURL == "" {
		errs = append(errs, errors.New("tts.base_url is required"))
	}

	if cfg.Conversation.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("conversation.max_turns must be positive, got %d", cfg.Conversation.MaxTurns))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReconnectMinS > cfg.Server.ReconnectMaxS {
		errs = append(errs, fmt.Errorf("server.reconnect_min_s %v exceeds server.reconnect_max_s %v", cfg.Server.ReconnectMinS, cfg.Server.ReconnectMaxS))
	}

	return errors.Join(errs...)
}
