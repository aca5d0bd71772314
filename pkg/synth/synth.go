// Package synth assembles spoken reply artifacts. It splits reply text
// into chunks, synthesizes each chunk through a TTS provider, and
// concatenates the audio in chunk order into a single WAV file.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/arguendo/arguendo/pkg/audio"
	"github.com/arguendo/arguendo/pkg/store"
	"github.com/arguendo/arguendo/pkg/tts"
)

// ErrEmptyText is returned when there is no text to speak.
var ErrEmptyText = errors.New("synth: empty reply text")

// maxChunkChars bounds the text sent per synthesis request. Long replies
// are split at sentence boundaries below this limit.
const maxChunkChars = 400

// Result describes a completed synthesis.
type Result struct {
	// ArtifactID identifies the stored WAV file.
	ArtifactID string

	// SampleRate of the written artifact in Hz.
	SampleRate int

	// Duration of the audio.
	Duration time.Duration

	// Chunks is the number of text chunks synthesized.
	Chunks int

	// Bytes is the PCM payload size before the WAV header.
	Bytes int
}

// Synthesizer converts reply text into WAV artifacts.
type Synthesizer struct {
	provider tts.Provider
	store    *store.Store
	logger   *slog.Logger
}

// New creates a synthesizer backed by the given provider and store.
func New(provider tts.Provider, st *store.Store, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		store:    st,
		logger:   logger.With("component", "synth"),
	}
}

// Synthesize speaks text into a new WAV artifact and returns its ID.
//
// Text is split into sentence-bounded chunks which are synthesized
// strictly in order; the PCM from each chunk is appended in the same
// order, so the artifact plays back as one continuous utterance. On any
// failure the partially written artifact is discarded and no ID escapes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Result, error) {
	chunks := SplitText(text, maxChunkChars)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	var pcm []byte
	sampleRate := 0
	for i, chunk := range chunks {
		chunkPCM, format, err := s.synthesizeChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if sampleRate == 0 {
			sampleRate = format.SampleRate
		}
		pcm = append(pcm, chunkPCM...)
	}

	// PCM16 frames are 2 bytes; a trailing odd byte means a truncated
	// stream and would corrupt the WAV data chunk.
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("synth: provider returned no audio")
	}

	id, f, err := s.store.CreateArtifact(".wav")
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	if err := audio.WriteWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		s.store.DiscardArtifact(id)
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		s.store.DiscardArtifact(id)
		return nil, fmt.Errorf("close artifact: %w", err)
	}

	result := &Result{
		ArtifactID: id,
		SampleRate: sampleRate,
		Duration:   time.Duration(audio.Duration(pcm, sampleRate) * float64(time.Second)),
		Chunks:     len(chunks),
		Bytes:      len(pcm),
	}

	s.logger.Debug("artifact written",
		"artifact_id", id,
		"chunks", result.Chunks,
		"bytes", result.Bytes,
		"duration", result.Duration,
	)
	return result, nil
}

// synthesizeChunk streams one text chunk and collects its PCM in order.
func (s *Synthesizer) synthesizeChunk(ctx context.Context, text string) ([]byte, tts.AudioFormat, error) {
	stream, err := s.provider.Stream(ctx, text)
	if err != nil {
		return nil, tts.AudioFormat{}, err
	}
	defer stream.Close()

	var pcm []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, tts.AudioFormat{}, err
		}
		chunk, err := stream.Read()
		if err != nil {
			return nil, tts.AudioFormat{}, err
		}
		if chunk == nil {
			break
		}
		pcm = append(pcm, chunk...)
	}
	return pcm, stream.Format(), nil
}

// SplitText breaks text into sentence-bounded chunks no longer than
// maxChars. Whitespace-only input yields no chunks. A single sentence
// longer than maxChars is split at word boundaries.
func SplitText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChars {
			flush()
		}
		if len(sentence) > maxChars {
			flush()
			for _, part := range splitWords(sentence, maxChars) {
				chunks = append(chunks, part)
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitSentences splits on terminal punctuation, keeping the punctuation
// attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// splitWords splits an over-long sentence at whitespace.
func splitWords(sentence string, maxChars int) []string {
	var parts []string
	var current strings.Builder

	for _, word := range strings.FieldsFunc(sentence, unicode.IsSpace) {
		if current.Len() > 0 && current.Len()+len(word)+1 > maxChars {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
