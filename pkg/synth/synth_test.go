package synth

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/arguendo/arguendo/pkg/store"
	"github.com/arguendo/arguendo/pkg/tts"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st
}

func TestSynthesizeWritesArtifact(t *testing.T) {
	st := newTestStore(t)
	s := New(tts.NewMock(), st, slog.Default())

	result, err := s.Synthesize(context.Background(), "Your argument rests on a false premise.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ArtifactID == "" {
		t.Fatal("expected artifact id")
	}
	if result.SampleRate != 24000 {
		t.Errorf("expected 24000 sample rate, got %d", result.SampleRate)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}

	path, err := st.ArtifactPath(result.ArtifactID)
	if err != nil {
		t.Fatalf("artifact path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("expected RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 24000 {
		t.Errorf("expected 24000 in header, got %d", rate)
	}
	if len(data) != 44+result.Bytes {
		t.Errorf("expected %d bytes on disk, got %d", 44+result.Bytes, len(data))
	}
}

func TestSynthesizePreservesChunkOrder(t *testing.T) {
	st := newTestStore(t)
	mock := tts.NewMockWithChunks(
		[]byte{0xAA, 0x01}, []byte{0xBB, 0x02}, []byte{0xCC, 0x03},
	)
	s := New(mock, st, slog.Default())

	result, err := s.Synthesize(context.Background(), "One ordered utterance.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, _ := st.ArtifactPath(result.ArtifactID)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	want := []byte{0xAA, 0x01, 0xBB, 0x02, 0xCC, 0x03}
	pcm := data[44:]
	if len(pcm) != len(want) {
		t.Fatalf("expected %d PCM bytes, got %d", len(want), len(pcm))
	}
	for i := range want {
		if pcm[i] != want[i] {
			t.Fatalf("PCM byte %d: expected %#x, got %#x", i, want[i], pcm[i])
		}
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	st := newTestStore(t)
	s := New(tts.NewMock(), st, slog.Default())

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Synthesize(context.Background(), text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("text %q: expected ErrEmptyText, got %v", text, err)
		}
	}
}

func TestSynthesizeProviderFailureLeavesNoArtifact(t *testing.T) {
	outputDir := t.TempDir()
	st, err := store.New(t.TempDir(), outputDir, slog.Default())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	s := New(tts.WithError(errors.New("voice service down")), st, slog.Default())
	if _, err := s.Synthesize(context.Background(), "Hello"); err == nil {
		t.Fatal("expected error")
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no artifacts, found %d", len(entries))
	}
}

func TestSynthesizeMultiChunkText(t *testing.T) {
	st := newTestStore(t)
	mock := tts.NewMock()
	s := New(mock, st, slog.Default())

	// Two sentences that together exceed one chunk.
	long := strings.Repeat("This clause pads the first sentence out considerably. ", 10)
	result, err := s.Synthesize(context.Background(), long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Chunks < 2 {
		t.Errorf("expected multiple chunks, got %d", result.Chunks)
	}
	if mock.CallCount("Stream") != result.Chunks {
		t.Errorf("expected %d Stream calls, got %d", result.Chunks, mock.CallCount("Stream"))
	}

	path, err := st.ArtifactPath(result.ArtifactID)
	if err != nil {
		t.Fatalf("artifact path: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing on disk: %v", err)
	}
}

func TestSplitText(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		if got := SplitText("  \n ", 100); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		got := SplitText("Hello there.", 100)
		if len(got) != 1 || got[0] != "Hello there." {
			t.Errorf("unexpected chunks: %v", got)
		}
	})

	t.Run("sentences pack up to the limit", func(t *testing.T) {
		got := SplitText("One. Two. Three.", 10)
		if len(got) != 3 {
			t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
		}
	})

	t.Run("oversized sentence splits at words", func(t *testing.T) {
		got := SplitText("alpha beta gamma delta", 11)
		if len(got) < 2 {
			t.Fatalf("expected word split, got %v", got)
		}
		for _, chunk := range got {
			if len(chunk) > 11 {
				t.Errorf("chunk %q exceeds limit", chunk)
			}
		}
	})

	t.Run("order is preserved", func(t *testing.T) {
		got := SplitText("First point. Second point. Third point.", 15)
		joined := strings.Join(got, " ")
		if joined != "First point. Second point. Third point." {
			t.Errorf("order or content changed: %q", joined)
		}
	})
}
