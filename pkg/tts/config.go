package tts

import (
	"log/slog"
	"time"
)

// Config holds the knobs shared by every synthesis provider. Providers
// read only the fields that apply to them; ElevenLabs needs a voice ID,
// OpenAI picks its own default voice.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID string
	ModelID string

	// VoiceSettings tunes delivery for providers that accept it.
	VoiceSettings VoiceSettings

	// OutputFormat selects the wire encoding. The pipeline assembles
	// WAV artifacts, so PCM is the default.
	OutputFormat Encoding

	// Timeout bounds buffered requests; StreamTimeout bounds how long
	// a stream may stay open without finishing.
	Timeout       time.Duration
	StreamTimeout time.Duration

	// MaxRetries and RetryDelay drive the 429/5xx retry loop.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the production defaults: 24kHz PCM output and a
// short linear-backoff retry budget.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       ModelTurboV2_5,
		OutputFormat:  EncodingPCM24,
		VoiceSettings: DefaultVoiceSettings(),
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Option mutates a Config during provider construction.
type Option func(*Config)

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithAPIKey sets the provider credential.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the provider endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice ID.
func WithVoice(voiceID string) Option {
	return func(c *Config) { c.VoiceID = voiceID }
}

// WithModel sets the synthesis model.
func WithModel(modelID string) Option {
	return func(c *Config) { c.ModelID = modelID }
}

// WithOutputFormat selects the wire encoding.
func WithOutputFormat(format Encoding) Option {
	return func(c *Config) { c.OutputFormat = format }
}

// WithTimeout bounds buffered synthesis requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithStreamTimeout bounds streaming synthesis requests.
func WithStreamTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = timeout }
}

// WithRetry sets the retry budget for rate-limited and 5xx responses.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice additionally requires a voice ID, for providers
// that cannot choose one themselves.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}
