// Package stt provides a unified interface for speech-to-text providers.
//
// A provider turns one stored utterance into plain text. Recognition is a
// synchronous, potentially slow call into an external capability; callers
// bound it with a context deadline. An empty transcript is a valid result,
// not an error; whether it aborts the conversation turn is the pipeline's
// decision.
//
// Example usage:
//
//	provider, _ := stt.NewWhisper(
//	    stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Transcribe(ctx, &stt.Request{
//	    Audio:    wavBytes,
//	    Filename: "utterance.wav",
//	})
package stt

import "context"

// Provider defines the speech-to-text provider interface.
type Provider interface {
	// Transcribe converts recorded audio into text.
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request carries one utterance to recognize.
type Request struct {
	// Audio is the raw recorded payload.
	Audio []byte

	// Filename hints the container format via its extension (.wav, .webm, ...).
	Filename string

	// Language is an optional ISO-639-1 hint.
	Language string

	// Prompt optionally biases recognition toward expected vocabulary.
	Prompt string
}

// Result is a completed transcription.
type Result struct {
	// Text is the recognized transcript. May be empty for silent audio.
	Text string

	// Language is the detected language, when the API reports one.
	Language string

	// DurationSec is the recognized audio length, when reported.
	DurationSec float64

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}
