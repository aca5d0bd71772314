package pipeline

import (
	"sync"
	"time"
)

// TurnMetrics tracks latency at each stage of one conversation turn.
// All durations are measured from the moment the upload was received.
type TurnMetrics struct {
	ReceivedTime time.Time

	// Per-stage latencies
	IngestLatency     time.Duration
	TranscribeLatency time.Duration
	RespondLatency    time.Duration
	SynthesizeLatency time.Duration
	TotalLatency      time.Duration

	// Turn payload sizes
	AudioBytesIn  int
	AudioBytesOut int
	TranscriptLen int
	ReplyLen      int

	Failed bool
}

// Collector aggregates metrics across turns. It is goroutine-safe;
// concurrent turns record independently.
type Collector struct {
	mu       sync.Mutex
	turns    int
	failures int
	history  []TurnMetrics
}

// historyCap bounds the rolling window used for averages.
const historyCap = 100

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{
		history: make([]TurnMetrics, 0, historyCap),
	}
}

// Record archives a completed turn.
func (c *Collector) Record(m TurnMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns++
	if m.Failed {
		c.failures++
	}
	c.history = append(c.history, m)
	if len(c.history) > historyCap {
		c.history = c.history[1:]
	}
}

// Snapshot is a point-in-time metrics summary.
type Snapshot struct {
	Turns    int `json:"turns"`
	Failures int `json:"failures"`

	// Averages over the rolling window, in milliseconds.
	AvgIngestMs     int64 `json:"avgIngestMs"`
	AvgTranscribeMs int64 `json:"avgTranscribeMs"`
	AvgRespondMs    int64 `json:"avgRespondMs"`
	AvgSynthesizeMs int64 `json:"avgSynthesizeMs"`
	AvgTotalMs      int64 `json:"avgTotalMs"`
}

// Snapshot returns counters and rolling-window averages.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Turns: c.turns, Failures: c.failures}
	if len(c.history) == 0 {
		return snap
	}

	var ingest, transcribe, respond, synthesize, total time.Duration
	for _, h := range c.history {
		ingest += h.IngestLatency
		transcribe += h.TranscribeLatency
		respond += h.RespondLatency
		synthesize += h.SynthesizeLatency
		total += h.TotalLatency
	}

	n := time.Duration(len(c.history))
	snap.AvgIngestMs = (ingest / n).Milliseconds()
	snap.AvgTranscribeMs = (transcribe / n).Milliseconds()
	snap.AvgRespondMs = (respond / n).Milliseconds()
	snap.AvgSynthesizeMs = (synthesize / n).Milliseconds()
	snap.AvgTotalMs = (total / n).Milliseconds()
	return snap
}
