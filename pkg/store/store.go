// Package store manages the scoped files of a conversation turn: the
// uploaded utterance awaiting transcription and the synthesized artifact
// returned to the caller.
//
// Every object is addressed by a generated UUID, never by a caller-supplied
// name. Utterances are written atomically (temp file, then rename) so a
// failed ingest never leaves a partial file visible to later stages.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrEmptyAudio is returned for zero-length upload payloads.
	ErrEmptyAudio = errors.New("store: empty audio payload")

	// ErrNotFound is returned when an artifact ID has no file.
	ErrNotFound = errors.New("store: artifact not found")

	// ErrBadID is returned for IDs that are not bare UUID-style names.
	ErrBadID = errors.New("store: malformed object ID")
)

// Utterance is a persisted upload awaiting transcription.
// The file's removal belongs to the pipeline's cleanup phase, not here.
type Utterance struct {
	ID        string
	Path      string
	Size      int
	CreatedAt time.Time
}

// Store owns the upload and artifact directories.
type Store struct {
	uploadDir string
	outputDir string
	logger    *slog.Logger
}

// New creates both directories if needed and returns a Store.
func New(uploadDir, outputDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return &Store{
		uploadDir: uploadDir,
		outputDir: outputDir,
		logger:    logger.With("component", "store"),
	}, nil
}

// SaveUtterance persists an uploaded payload under a fresh UUID.
// The bytes land in a temp file first and are renamed into place, so
// either the full utterance is visible or nothing is.
func (s *Store) SaveUtterance(data []byte, contentHint string) (*Utterance, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	id := uuid.NewString()
	final := filepath.Join(s.uploadDir, id+extFromHint(contentHint))

	tmp, err := os.CreateTemp(s.uploadDir, "."+id+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("store: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: write utterance: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: close utterance: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("store: publish utterance: %w", err)
	}

	s.logger.Debug("utterance saved", "id", id, "bytes", len(data))

	return &Utterance{
		ID:        id,
		Path:      final,
		Size:      len(data),
		CreatedAt: time.Now(),
	}, nil
}

// RemoveUtterance deletes an utterance file. Missing files are not an
// error; cleanup runs on every exit path and must be idempotent.
func (s *Store) RemoveUtterance(u *Utterance) error {
	if u == nil {
		return nil
	}
	err := os.Remove(u.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove utterance %s: %w", u.ID, err)
	}
	return nil
}

// CreateArtifact opens a new uniquely named output file for writing.
// O_EXCL guarantees an existing artifact is never overwritten.
// The caller owns closing the file; on failure it should also call
// DiscardArtifact so no zero-length file lingers.
func (s *Store) CreateArtifact(ext string) (string, *os.File, error) {
	if ext == "" {
		ext = ".wav"
	}
	id := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(s.outputDir, id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("store: create artifact: %w", err)
	}
	return id, f, nil
}

// DiscardArtifact removes a partially written artifact.
func (s *Store) DiscardArtifact(id string) error {
	path, err := s.artifactPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: discard artifact %s: %w", id, err)
	}
	return nil
}

// ArtifactPath resolves an artifact ID to a file path, verifying the
// file exists. IDs containing path separators are rejected outright.
func (s *Store) ArtifactPath(id string) (string, error) {
	path, err := s.artifactPath(id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: stat artifact %s: %w", id, err)
	}
	return path, nil
}

func (s *Store) artifactPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", ErrBadID
	}
	return filepath.Join(s.outputDir, id), nil
}

// extFromHint maps an upload content type to a file extension.
// Unknown hints fall back to .wav, which is what browser recorders and
// the transcription API both tolerate.
func extFromHint(hint string) string {
	switch {
	case strings.Contains(hint, "webm"):
		return ".webm"
	case strings.Contains(hint, "ogg"):
		return ".ogg"
	case strings.Contains(hint, "mpeg"), strings.Contains(hint, "mp3"):
		return ".mp3"
	case strings.Contains(hint, "mp4"), strings.Contains(hint, "m4a"):
		return ".m4a"
	default:
		return ".wav"
	}
}
