// Package metrics implements the Metrics component (SPEC_FULL §4.12 / C13):
// a ring of the last 50 cycles with hook points the reducer's EffectRunner
// calls, and a summary recomputed on query. Plain ring-buffer bookkeeping
// has no direct teacher analog, so it is stdlib-only by necessity (see
// DESIGN.md), but follows the teacher's small-struct-plus-mutex style used
// throughout internal/session and internal/audio.
package metrics

import (
	"sync"
	"time"
)

const ringSize = 50

// DegradedReason tags a cycle that completed but not cleanly, e.g. a
// transcription failure rescued by a non-empty partial (SPEC_FULL §7,
// resolved Open Question: tag these "partial_rescue").
type DegradedReason string

// DegradedPartialRescue marks a Done reached via TranscribeFail-with-partial
// rather than a clean TranscribeOk.
const DegradedPartialRescue DegradedReason = "partial_rescue"

// DegradedNoSpeech marks a cycle that ended in NoSpeech: not a failure
// (SPEC_FULL §7), but not a clean transcription either.
const DegradedNoSpeech DegradedReason = "no_speech"

// Cycle records one dictation attempt's timings and outcome.
type Cycle struct {
	StartedAt time.Time

	RecordingMS      int64
	TranscriptionMS  int64
	TotalMS          int64

	TranscriptChars int
	WordCount       int
	AudioBytes      int64

	Succeeded      bool
	ErrKind        string
	DegradedReason DegradedReason
}

// Summary is the recomputed-on-query aggregate view.
type Summary struct {
	TotalCycles int
	Successes   int
	Failures    int
	Degraded    int // successes tagged with a DegradedReason
	SuccessRate float64

	AvgRecordingMS     float64
	AvgTranscriptionMS float64
	AvgTotalMS         float64

	LastError string

	// LastCycle is the most recently finished cycle, exposed so callers
	// can report spec.md §8's
	// transcript_length_chars/word_count without reaching into the ring
	// directly. Zero value if no cycle has finished yet.
	LastCycle Cycle
}

// cycleInProgress tracks the hook-point timings for the one cycle allowed to
// be in flight at a time.
type cycleInProgress struct {
	startedAt          time.Time
	recordingStartedAt time.Time
	transcribeStartAt  time.Time
	audioBytes         int64
	chars              int
	wordCount          int
}

// Metrics is the ring of recent cycles plus the single in-progress cycle's
// bookkeeping.
type Metrics struct {
	mu      sync.Mutex
	ring    []Cycle
	current *cycleInProgress
	onWarn  func(string)
}

// New constructs an empty Metrics ring. onWarn, if non-nil, receives the
// warning logged when a new cycle starts while one is already in progress.
func New(onWarn func(string)) *Metrics {
	return &Metrics{onWarn: onWarn}
}

// StartCycle begins tracking a new cycle. If one was already in progress,
// it is recorded as failed with err_kind "superseded" and a warning is
// logged (SPEC_FULL §4.12 invariant).
func (m *Metrics) StartCycle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.finishLocked(Cycle{
			StartedAt: m.current.startedAt,
			Succeeded: false,
			ErrKind:   "superseded",
		})
		if m.onWarn != nil {
			m.onWarn("metrics: new cycle started while one was still in progress")
		}
	}
	m.current = &cycleInProgress{startedAt: now}
}

// RecordingStarted marks the recording-started hook point.
func (m *Metrics) RecordingStarted(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.recordingStartedAt = now
	}
}

// RecordingStopped marks the recording-stopped hook point with the captured
// byte count.
func (m *Metrics) RecordingStopped(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.audioBytes = bytes
	}
}

// TranscriptionStarted marks the transcription-started hook point.
func (m *Metrics) TranscriptionStarted(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.transcribeStartAt = now
	}
}

// TranscriptionCompleted marks transcription-completed with the resulting
// char/word counts; it does not close the cycle (CycleCompleted does).
func (m *Metrics) TranscriptionCompleted(chars, wordCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.chars = chars
	m.current.wordCount = wordCount
}

// CycleCompleted closes the in-progress cycle as a success.
func (m *Metrics) CycleCompleted(now time.Time, degraded DegradedReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.finishLocked(Cycle{
		StartedAt:       m.current.startedAt,
		RecordingMS:     subMS(m.current.transcribeStartAt, m.current.recordingStartedAt),
		TranscriptionMS: subMS(now, m.current.transcribeStartAt),
		TotalMS:         now.Sub(m.current.startedAt).Milliseconds(),
		TranscriptChars: m.current.chars,
		WordCount:       m.current.wordCount,
		AudioBytes:      m.current.audioBytes,
		Succeeded:       true,
		DegradedReason:  degraded,
	})
}

// CycleFailed closes the in-progress cycle as a failure tagged with errKind.
func (m *Metrics) CycleFailed(now time.Time, errKind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.finishLocked(Cycle{
		StartedAt:  m.current.startedAt,
		TotalMS:    now.Sub(m.current.startedAt).Milliseconds(),
		AudioBytes: m.current.audioBytes,
		Succeeded:  false,
		ErrKind:    errKind,
	})
}

// finishLocked appends c to the ring, evicting the oldest entry past
// ringSize, and clears the in-progress cycle. Caller must hold m.mu.
func (m *Metrics) finishLocked(c Cycle) {
	m.ring = append(m.ring, c)
	if len(m.ring) > ringSize {
		m.ring = m.ring[len(m.ring)-ringSize:]
	}
	m.current = nil
}

// Summary recomputes the aggregate view over the current ring contents.
func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	s.TotalCycles = len(m.ring)
	if s.TotalCycles == 0 {
		return s
	}

	var recordingSum, transcriptionSum, totalSum float64
	for _, c := range m.ring {
		if c.Succeeded {
			s.Successes++
			if c.DegradedReason != "" {
				s.Degraded++
			}
		} else {
			s.Failures++
			s.LastError = c.ErrKind
		}
		recordingSum += float64(c.RecordingMS)
		transcriptionSum += float64(c.TranscriptionMS)
		totalSum += float64(c.TotalMS)
	}

	n := float64(s.TotalCycles)
	s.AvgRecordingMS = recordingSum / n
	s.AvgTranscriptionMS = transcriptionSum / n
	s.AvgTotalMS = totalSum / n
	s.SuccessRate = float64(s.Successes) / n
	s.LastCycle = m.ring[len(m.ring)-1]
	return s
}

func subMS(end, start time.Time) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start).Milliseconds()
}
