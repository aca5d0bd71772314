package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "uploads"), filepath.Join(dir, "artifacts"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestSaveUtterance(t *testing.T) {
	s := newTestStore(t)

	t.Run("persists bytes", func(t *testing.T) {
		u, err := s.SaveUtterance([]byte("audio-bytes"), "audio/wav")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(u.Path)
		if err != nil {
			t.Fatalf("read saved file: %v", err)
		}
		if string(data) != "audio-bytes" {
			t.Errorf("unexpected content: %q", data)
		}
		if u.Size != len("audio-bytes") {
			t.Errorf("expected size %d, got %d", len("audio-bytes"), u.Size)
		}
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := s.SaveUtterance(nil, "audio/wav")
		if err != ErrEmptyAudio {
			t.Errorf("expected ErrEmptyAudio, got %v", err)
		}
	})

	t.Run("unique identifiers", func(t *testing.T) {
		a, _ := s.SaveUtterance([]byte("a"), "")
		b, _ := s.SaveUtterance([]byte("b"), "")
		if a.ID == b.ID {
			t.Error("expected distinct utterance IDs")
		}
	})

	t.Run("extension follows content hint", func(t *testing.T) {
		u, _ := s.SaveUtterance([]byte("x"), "audio/webm;codecs=opus")
		if !strings.HasSuffix(u.Path, ".webm") {
			t.Errorf("expected .webm suffix, got %s", u.Path)
		}
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		s.SaveUtterance([]byte("y"), "audio/wav")
		entries, _ := os.ReadDir(s.uploadDir)
		for _, e := range entries {
			if strings.Contains(e.Name(), ".tmp-") {
				t.Errorf("leftover temp file: %s", e.Name())
			}
		}
	})
}

func TestRemoveUtterance(t *testing.T) {
	s := newTestStore(t)
	u, _ := s.SaveUtterance([]byte("bytes"), "")

	if err := s.RemoveUtterance(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(u.Path); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}

	// Idempotent: removing again is fine
	if err := s.RemoveUtterance(u); err != nil {
		t.Errorf("expected idempotent removal, got %v", err)
	}
	if err := s.RemoveUtterance(nil); err != nil {
		t.Errorf("expected nil utterance to be a no-op, got %v", err)
	}
}

func TestArtifacts(t *testing.T) {
	s := newTestStore(t)

	t.Run("create and resolve", func(t *testing.T) {
		id, f, err := s.CreateArtifact(".wav")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f.Write([]byte("wav-data"))
		f.Close()

		path, err := s.ArtifactPath(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "wav-data" {
			t.Errorf("unexpected artifact content: %q", data)
		}
	})

	t.Run("unknown ID", func(t *testing.T) {
		_, err := s.ArtifactPath("nope.wav")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		for _, id := range []string{"../escape.wav", "a/b.wav", `a\b.wav`, ""} {
			if _, err := s.ArtifactPath(id); err != ErrBadID {
				t.Errorf("expected ErrBadID for %q, got %v", id, err)
			}
		}
	})

	t.Run("discard removes partial file", func(t *testing.T) {
		id, f, _ := s.CreateArtifact(".wav")
		f.Close()
		if err := s.DiscardArtifact(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.ArtifactPath(id); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after discard, got %v", err)
		}
	})
}
