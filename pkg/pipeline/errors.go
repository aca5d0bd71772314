package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage identifies which pipeline stage a turn was in when it failed.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
)

// Kind classifies turn failures for callers. Every failed turn maps to
// exactly one kind.
type Kind string

const (
	KindInvalidAudio         Kind = "invalid_audio"
	KindStorageFailure       Kind = "storage_failure"
	KindTranscriptionFailure Kind = "transcription_failure"
	KindTimeout              Kind = "timeout"
	KindDialogueFailure      Kind = "dialogue_failure"
	KindSessionNotFound      Kind = "session_not_found"
	KindSynthesisFailure     Kind = "synthesis_failure"
)

// StageError is the single error type a turn can fail with. It names
// the stage that failed, the failure kind, and the underlying cause.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline [%s/%s]: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the turn failed on a stage deadline.
func (e *StageError) IsTimeout() bool {
	return e.Kind == KindTimeout
}

// failStage wraps err as a StageError, converting context deadline
// errors into the timeout kind so callers see one taxonomy.
func failStage(stage Stage, kind Kind, err error) *StageError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
