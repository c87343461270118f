// Package waveform turns captured PCM into the 24-bar HUD meter (SPEC_FULL
// §4.6 / C5). It has no direct analog in the teacher or the pack: RMS/EMA
// over a float slice is arithmetic, not I/O or protocol work, so it is built
// on the standard library (see DESIGN.md for the justification) while
// reusing the teacher's non-blocking-channel idiom for the ring buffer feed.
package waveform

import (
	"context"
	"math"
	"time"
)

const (
	ringCapacitySamples = 10_000
	barCount            = 24
	fullScale           = 1 << 15 // int16 full-scale magnitude
	emaAlpha            = 0.3
	sampleRate          = 30 // Hz, the HUD meter refresh rate
)

// Update is the bar snapshot delivered to the HUD via UiEmitter's side
// channel (SPEC_FULL §4.6 "WaveformUpdate{bars: [f32;24]}").
type Update struct {
	Bars [barCount]float32
}

// Sampler maintains a bounded ring buffer of int16 samples and, at 30 Hz,
// recomputes the 24-bar normalized RMS meter with exponential smoothing.
type Sampler struct {
	in   chan []byte
	ring []int16
	pos  int
	full bool

	prev [barCount]float32
}

// NewSampler constructs a Sampler with an internal non-blocking input queue.
func NewSampler() *Sampler {
	return &Sampler{
		in:   make(chan []byte, 64),
		ring: make([]int16, ringCapacitySamples),
	}
}

// TrySend offers a raw little-endian PCM chunk to the sampler without
// blocking; it reports false if the queue was full, mirroring
// AudioCapture's fan-out contract (SPEC_FULL §4.4: "drop on full").
func (s *Sampler) TrySend(pcm []byte) bool {
	select {
	case s.in <- pcm:
		return true
	default:
		return false
	}
}

// Run drains the input queue into the ring buffer and emits a bar Update
// every 1/30s until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, emit func(Update)) {
	ticker := time.NewTicker(time.Second / sampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain()
			emit(Update{Bars: s.computeBars()})
		}
	}
}

// drain empties the input queue into the circular ring buffer.
func (s *Sampler) drain() {
	for {
		select {
		case pcm := <-s.in:
			s.appendPCM(pcm)
		default:
			return
		}
	}
}

func (s *Sampler) appendPCM(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		s.ring[s.pos] = sample
		s.pos++
		if s.pos == len(s.ring) {
			s.pos = 0
			s.full = true
		}
	}
}

// filledLen returns how many ring slots currently hold real samples.
func (s *Sampler) filledLen() int {
	if s.full {
		return len(s.ring)
	}
	return s.pos
}

// computeBars partitions the filled portion of the ring into barCount equal
// segments, computes normalized RMS per segment, and applies an EMA against
// the previous frame (SPEC_FULL §4.6).
func (s *Sampler) computeBars() [barCount]float32 {
	n := s.filledLen()
	if n == 0 {
		return s.prev // all-zero until first frame; prev starts at zero value
	}

	segmentLen := n / barCount
	if segmentLen == 0 {
		return s.prev
	}

	var next [barCount]float32
	for bar := 0; bar < barCount; bar++ {
		start := bar * segmentLen
		end := start + segmentLen
		if bar == barCount-1 {
			end = n
		}
		rms := segmentRMS(s.orderedRing(), start, end)
		normalized := float32(rms / fullScale)
		if normalized > 1 {
			normalized = 1
		}
		next[bar] = emaAlpha*normalized + (1-emaAlpha)*s.prev[bar]
	}
	s.prev = next
	return next
}

// orderedRing returns ring samples in chronological (oldest-first) order.
func (s *Sampler) orderedRing() []int16 {
	if !s.full {
		return s.ring[:s.pos]
	}
	out := make([]int16, len(s.ring))
	n := copy(out, s.ring[s.pos:])
	copy(out[n:], s.ring[:s.pos])
	return out
}

func segmentRMS(samples []int16, start, end int) float64 {
	if end <= start || start < 0 || end > len(samples) {
		return 0
	}
	var sumSquares float64
	for _, v := range samples[start:end] {
		f := float64(v)
		sumSquares += f * f
	}
	return math.Sqrt(sumSquares / float64(end-start))
}
