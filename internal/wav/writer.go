// Package wav produces a single standards-conformant 16-bit PCM mono
// container per recording cycle (SPEC_FULL §4.5 / C4 WavWriter).
package wav

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// sampleRate must match internal/audio.SampleRateHz, the rate the
	// capture stream is actually opened at; wav can't import audio without
	// a cycle (audio imports wav for the writer it owns), so this is a
	// documented invariant rather than a shared constant.
	sampleRate = 16000
	numChans   = 1
	bitDepth   = 16
)

// Writer wraps a go-audio/wav.Encoder with the mutex/poison-safety discipline
// AudioCapture's real-time callback requires: Append must never panic, and
// the header must always be patched to the true sample count on Finalize,
// including on a recovery path after a poisoned mutex.
type Writer struct {
	path string
	file *os.File
	enc  *wav.Encoder

	mu       sync.Mutex
	poisoned bool
	samples  int
	buf      []int // reused scratch slice for Append
}

// Create opens path for writing and prepares the WAV encoder. The header is
// written provisionally; Encoder.Close patches it with final sizes.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file %q: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChans, 1)
	return &Writer{path: path, file: f, enc: enc}, nil
}

// Path returns the on-disk location of the container.
func (w *Writer) Path() string { return w.path }

// SampleCount reports the number of 16-bit samples written so far.
func (w *Writer) SampleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Append writes 16-bit little-endian PCM samples. It never panics: on a
// poisoned internal state it logs nothing itself (the caller owns logging)
// and returns an error so AudioCapture's callback can flip its stop flag and
// return early, per SPEC_FULL §4.4.
func (w *Writer) Append(pcm []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			w.poisoned = true
			w.mu.Unlock()
			err = fmt.Errorf("wav writer recovered from panic: %v", r)
		}
	}()

	if len(pcm) < 2 {
		return nil
	}

	w.mu.Lock()
	if w.poisoned {
		w.mu.Unlock()
		return fmt.Errorf("wav writer is poisoned")
	}

	n := len(pcm) / 2
	if cap(w.buf) < n {
		w.buf = make([]int, n)
	}
	samples := w.buf[:n]
	for i := 0; i < n; i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
	}
	w.samples += n
	w.mu.Unlock()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := w.enc.Write(buf); err != nil {
		w.mu.Lock()
		w.poisoned = true
		w.mu.Unlock()
		return fmt.Errorf("wav encode: %w", err)
	}
	return nil
}

// Finalize patches the RIFF/data chunk sizes and closes the underlying file.
// Safe to call once even after Append returned an error: the encoder always
// has a consistent view of bytes actually written. A second call returns an
// error because the file is already closed.
func (w *Writer) Finalize() error {
	closeErr := w.enc.Close()
	fileErr := w.file.Close()
	if closeErr != nil {
		return fmt.Errorf("finalize wav header %q: %w", w.path, closeErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close wav file %q: %w", w.path, fileErr)
	}
	return nil
}

// DurationMS returns the capture duration implied by samples written so far.
func (w *Writer) DurationMS() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.samples) * 1000 / int64(sampleRate)
}

// BytesWritten returns the raw PCM byte count implied by samples written.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.samples) * 2
}
