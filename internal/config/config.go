// Package config provides environment-driven configuration for the
// arguendo server. Every knob has a sensible default so a bare
// `go run ./cmd/server` works with only the API keys set.
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the HTTP surface and storage locations.
const (
	DefaultAddr      = ":8080"
	DefaultUploadDir = "data/uploads"
	DefaultOutputDir = "data/artifacts"
)

// Default per-stage timeouts. Each external capability call is bounded;
// these only need to be finite, not tight.
const (
	DefaultSTTTimeout  = 30 * time.Second
	DefaultChatTimeout = 30 * time.Second
	DefaultTTSTimeout  = 60 * time.Second
)

// DefaultSystemPrompt pins the conversational persona. The service was
// built as a spoken debate partner; override with ARGUENDO_SYSTEM_PROMPT.
const DefaultSystemPrompt = "You are a sharp, good-natured debate partner. " +
	"Keep replies concise and spoken-word friendly."

// Config is the resolved server configuration.
type Config struct {
	Addr      string
	LogLevel  string
	UploadDir string
	OutputDir string

	// Capability credentials
	OpenAIKey     string
	GeminiKey     string
	ElevenLabsKey string
	VoiceID       string

	// Per-stage timeouts
	STTTimeout  time.Duration
	ChatTimeout time.Duration
	TTSTimeout  time.Duration

	SystemPrompt string

	// AbortEmptyTranscript fails a turn when recognition produces no
	// text instead of forwarding the empty transcript to the dialogue
	// stage. Off by default.
	AbortEmptyTranscript bool
}

// Load resolves configuration from the environment.
func Load() Config {
	return Config{
		Addr:      Env("ARGUENDO_ADDR", DefaultAddr),
		LogLevel:  Env("ARGUENDO_LOG_LEVEL", "info"),
		UploadDir: Env("ARGUENDO_UPLOAD_DIR", DefaultUploadDir),
		OutputDir: Env("ARGUENDO_OUTPUT_DIR", DefaultOutputDir),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		ElevenLabsKey: os.Getenv("ELEVENLABS_API_KEY"),
		VoiceID:       os.Getenv("ELEVENLABS_VOICE_ID"),

		STTTimeout:  EnvDuration("ARGUENDO_STT_TIMEOUT", DefaultSTTTimeout),
		ChatTimeout: EnvDuration("ARGUENDO_CHAT_TIMEOUT", DefaultChatTimeout),
		TTSTimeout:  EnvDuration("ARGUENDO_TTS_TIMEOUT", DefaultTTSTimeout),

		SystemPrompt: Env("ARGUENDO_SYSTEM_PROMPT", DefaultSystemPrompt),

		AbortEmptyTranscript: EnvBool("ARGUENDO_ABORT_EMPTY_TRANSCRIPT", false),
	}
}

// Env returns the value of the named variable or the fallback.
func Env(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// EnvDuration parses a duration from the environment.
// Falls back on missing or unparsable values.
func EnvDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// EnvBool parses a boolean from the environment.
// Falls back on missing or unparsable values.
func EnvBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
