// Package pipeline orchestrates a conversation turn: persist the
// uploaded utterance, transcribe it, generate a dialogue reply, and
// synthesize the reply into a WAV artifact.
//
// Each stage runs under its own deadline. A turn fails with exactly one
// StageError naming the stage and failure kind, and the uploaded
// utterance is removed on every exit path, success or failure.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arguendo/arguendo/pkg/dialogue"
	"github.com/arguendo/arguendo/pkg/store"
	"github.com/arguendo/arguendo/pkg/stt"
	"github.com/arguendo/arguendo/pkg/synth"
)

// State is a turn's position in its lifecycle.
type State string

const (
	StateReceived    State = "received"
	StateIngested    State = "ingested"
	StateTranscribed State = "transcribed"
	StateReplied     State = "replied"
	StateSynthesized State = "synthesized"
	StateDelivered   State = "delivered"
	StateFailed      State = "failed"
)

// Turn is the result of running one conversation turn.
type Turn struct {
	ID         string        `json:"turnId"`
	SessionID  string        `json:"sessionId"`
	State      State         `json:"state"`
	Transcript string        `json:"transcript"`
	Reply      string        `json:"reply"`
	ArtifactID string        `json:"artifactId,omitempty"`
	Duration   time.Duration `json:"-"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Event is a lifecycle notification emitted as a turn advances.
type Event struct {
	TurnID    string    `json:"turnId"`
	SessionID string    `json:"sessionId"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Timeouts bounds each external capability call.
type Timeouts struct {
	Transcribe time.Duration
	Respond    time.Duration
	Synthesize time.Duration
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithNotify sets a callback invoked for every lifecycle event.
// The callback must not block.
func WithNotify(fn func(Event)) Option {
	return func(o *Orchestrator) {
		o.notify = fn
	}
}

// WithAbortEmptyTranscript makes turns fail when recognition produces
// no text instead of forwarding the empty transcript to dialogue.
func WithAbortEmptyTranscript() Option {
	return func(o *Orchestrator) {
		o.abortEmpty = true
	}
}

// Orchestrator drives turns through the pipeline stages.
type Orchestrator struct {
	store    *store.Store
	sttp     stt.Provider
	sessions *dialogue.Manager
	synth    *synth.Synthesizer
	timeouts Timeouts
	metrics  *Collector
	logger   *slog.Logger

	abortEmpty bool
	notify     func(Event)
}

// New creates an orchestrator.
func New(st *store.Store, sttp stt.Provider, sessions *dialogue.Manager, sy *synth.Synthesizer, timeouts Timeouts, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		sttp:     sttp,
		sessions: sessions,
		synth:    sy,
		timeouts: timeouts,
		metrics:  NewCollector(),
		logger:   logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Metrics returns the turn metrics collector.
func (o *Orchestrator) Metrics() *Collector {
	return o.metrics
}

// Run executes one conversation turn and returns the completed Turn.
// On failure the returned error is always a *StageError; the returned
// Turn carries whatever state the turn reached.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, audioData []byte, contentHint string) (*Turn, error) {
	start := time.Now()
	turn := &Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		State:     StateReceived,
		CreatedAt: start,
	}
	m := TurnMetrics{ReceivedTime: start, AudioBytesIn: len(audioData)}
	o.emit(turn, nil)

	// Ingest
	utt, err := o.store.SaveUtterance(audioData, contentHint)
	if err != nil {
		kind := KindStorageFailure
		if errors.Is(err, store.ErrEmptyAudio) {
			kind = KindInvalidAudio
		}
		return o.fail(turn, &m, failStage(StageIngest, kind, err))
	}
	// The utterance is transient input: remove it on every exit path.
	defer func() {
		if err := o.store.RemoveUtterance(utt); err != nil {
			o.logger.Warn("utterance cleanup failed", "utterance_id", utt.ID, "error", err)
		}
	}()
	m.IngestLatency = time.Since(start)
	o.advance(turn, StateIngested)

	// Transcribe
	sttCtx, cancelSTT := context.WithTimeout(ctx, o.timeouts.Transcribe)
	transcription, err := o.sttp.Transcribe(sttCtx, &stt.Request{
		Audio:    audioData,
		Filename: filepath.Base(utt.Path),
	})
	cancelSTT()
	if err != nil {
		return o.fail(turn, &m, failStage(StageTranscribe, KindTranscriptionFailure, err))
	}
	turn.Transcript = strings.TrimSpace(transcription.Text)
	m.TranscribeLatency = time.Since(start) - m.IngestLatency
	m.TranscriptLen = len(turn.Transcript)
	if turn.Transcript == "" && o.abortEmpty {
		return o.fail(turn, &m, failStage(StageTranscribe, KindInvalidAudio,
			errors.New("no speech recognized")))
	}
	o.advance(turn, StateTranscribed)

	// Respond
	session := o.sessions.Session(sessionID)
	chatCtx, cancelChat := context.WithTimeout(ctx, o.timeouts.Respond)
	reply, err := session.Respond(chatCtx, turn.Transcript)
	cancelChat()
	if err != nil {
		return o.fail(turn, &m, failStage(StageRespond, KindDialogueFailure, err))
	}
	turn.Reply = reply
	m.RespondLatency = time.Since(start) - m.IngestLatency - m.TranscribeLatency
	m.ReplyLen = len(reply)
	o.advance(turn, StateReplied)

	// Synthesize. The reply is already committed to session history, so
	// a failure here leaves the conversation intact for the next turn.
	ttsCtx, cancelTTS := context.WithTimeout(ctx, o.timeouts.Synthesize)
	artifact, err := o.synth.Synthesize(ttsCtx, reply)
	cancelTTS()
	if err != nil {
		return o.fail(turn, &m, failStage(StageSynthesize, KindSynthesisFailure, err))
	}
	turn.ArtifactID = artifact.ArtifactID
	turn.Duration = artifact.Duration
	m.SynthesizeLatency = time.Since(start) - m.IngestLatency - m.TranscribeLatency - m.RespondLatency
	m.AudioBytesOut = artifact.Bytes
	o.advance(turn, StateSynthesized)

	m.TotalLatency = time.Since(start)
	o.metrics.Record(m)
	o.advance(turn, StateDelivered)

	o.logger.Info("turn completed",
		"turn_id", turn.ID,
		"session_id", sessionID,
		"transcript_len", m.TranscriptLen,
		"reply_len", m.ReplyLen,
		"artifact_id", turn.ArtifactID,
		"total_ms", m.TotalLatency.Milliseconds(),
	)
	return turn, nil
}

// advance moves the turn to the next state and notifies listeners.
func (o *Orchestrator) advance(turn *Turn, state State) {
	turn.State = state
	o.emit(turn, nil)
}

// fail marks the turn failed, records metrics, and returns the error.
func (o *Orchestrator) fail(turn *Turn, m *TurnMetrics, err *StageError) (*Turn, error) {
	turn.State = StateFailed
	m.Failed = true
	m.TotalLatency = time.Since(m.ReceivedTime)
	o.metrics.Record(*m)
	o.emit(turn, err)

	o.logger.Warn("turn failed",
		"turn_id", turn.ID,
		"session_id", turn.SessionID,
		"stage", err.Stage,
		"kind", err.Kind,
		"error", err.Err,
	)
	return turn, err
}

// emit sends a lifecycle event if a listener is registered.
func (o *Orchestrator) emit(turn *Turn, stageErr *StageError) {
	if o.notify == nil {
		return
	}
	ev := Event{
		TurnID:    turn.ID,
		SessionID: turn.SessionID,
		State:     turn.State,
		At:        time.Now(),
	}
	if stageErr != nil {
		ev.Error = stageErr.Error()
	}
	o.notify(ev)
}
