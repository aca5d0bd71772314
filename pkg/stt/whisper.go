package stt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const providerWhisper = "whisper"

// Whisper implements Provider on top of the OpenAI transcription API.
type Whisper struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewWhisper creates a Whisper speech-to-text provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &Whisper{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: cfg.Logger.With("component", "stt.whisper"),
	}, nil
}

// Transcribe converts recorded audio into text.
// Silent audio yields an empty Text with a nil error.
func (w *Whisper) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || len(req.Audio) == 0 {
		return nil, WrapError(providerWhisper, ErrNoAudio)
	}

	filename := req.Filename
	if filename == "" {
		filename = "utterance.wav"
	}
	language := req.Language
	if language == "" {
		language = w.config.Language
	}

	start := time.Now()

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: filename,
		Reader:   bytes.NewReader(req.Audio),
		Language: language,
		Prompt:   req.Prompt,
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	latency := time.Since(start).Milliseconds()

	w.logger.Debug("transcribed audio",
		"bytes", len(req.Audio),
		"chars", len(resp.Text),
		"latency_ms", latency,
		"model", w.config.Model,
	)

	return &Result{
		Text:        resp.Text,
		Language:    resp.Language,
		DurationSec: resp.Duration,
		LatencyMs:   latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (w *Whisper) Health(ctx context.Context) error {
	if _, err := w.client.ListModels(ctx); err != nil {
		return wrapOpenAIError(err)
	}
	return nil
}

// Close releases resources held by the provider.
func (w *Whisper) Close() error {
	return nil
}

// wrapOpenAIError maps go-openai errors onto the package taxonomy.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Provider:   providerWhisper,
		}
	}
	return WrapError(providerWhisper, err)
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
