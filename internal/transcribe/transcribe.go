// Package transcribe implements BatchTranscriber (SPEC_FULL §4.9 / C8) and
// the short-clip VAD heuristic (SPEC_FULL §4.8), grounded on
// LeonardoTrapani-hyprvoice/internal/transcriber/adapter_openai.go's
// sashabaranov/go-openai usage.
package transcribe

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/config"
	"github.com/vokey/transcribe/internal/core"
	"github.com/vokey/transcribe/internal/transcript"
)

// noSpeechProbThreshold is the verbose-JSON no_speech_prob above which the
// batch response is treated as silence rather than a transcript (SPEC_FULL
// §4.9).
const noSpeechProbThreshold = 0.9

// Transcriber implements core.Transcriber by uploading the finalized WAV to
// an OpenAI-compatible batch endpoint and, for short clips, running a local
// VAD pre-check (SPEC_FULL §4.8) so a silent recording never reaches the
// network at all.
type Transcriber struct {
	client   *openai.Client
	model    string
	apiKey   string
	settings config.Snapshot
}

// New constructs a Transcriber against the configured batch endpoint. The
// client appends "/audio/transcriptions" itself, so that suffix is trimmed
// from batch_url to get the API base URL.
func New(cfg config.Config, apiKey string, settings config.Snapshot) *Transcriber {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BatchURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BatchURL, "/"), "/audio/transcriptions")
	}
	return &Transcriber{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    openai.Whisper1,
		apiKey:   apiKey,
		settings: settings,
	}
}

// Transcribe satisfies core.Transcriber: it runs the VAD pre-check for
// short clips, then uploads and parses the batch response.
func (t *Transcriber) Transcribe(ctx context.Context, id clock.RecordingId, wavPath string, emit core.Emit) {
	if t.apiKey == "" {
		emit(core.Event{Kind: core.EventTranscribeFail, ID: id, Message: "missing transcription API credential"})
		return
	}

	duration, err := wavDuration(wavPath)
	if err != nil {
		emit(core.Event{Kind: core.EventTranscribeFail, ID: id, Message: err.Error(), Err: err})
		return
	}

	if duration < t.settings.VADCheckMax && t.settings.ShortClipVADEnabled {
		voiced, err := detectsVoice(wavPath, t.settings.VADIgnoreStart)
		if err != nil {
			emit(core.Event{Kind: core.EventTranscribeFail, ID: id, Message: err.Error(), Err: err})
			return
		}
		if !voiced {
			emit(core.Event{Kind: core.EventNoSpeechDetected, ID: id, NoSpeechSource: core.NoSpeechVAD})
			return
		}
	}

	file, err := os.Open(wavPath)
	if err != nil {
		emit(core.Event{Kind: core.EventTranscribeFail, ID: id, Message: fmt.Sprintf("open wav: %v", err), Err: err})
		return
	}
	defer file.Close()

	req := openai.AudioRequest{
		Model:    t.model,
		Reader:   file,
		FilePath: "audio.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		emit(core.Event{Kind: core.EventTranscribeFail, ID: id, Message: err.Error(), Err: err})
		return
	}

	if noSpeechProb(resp) > noSpeechProbThreshold {
		emit(core.Event{Kind: core.EventNoSpeechDetected, ID: id, NoSpeechSource: core.NoSpeechAPI})
		return
	}

	text := transcript.Assemble([]string{resp.Text}, transcript.Options{CapitalizeSentences: true})
	emit(core.Event{Kind: core.EventTranscribeOk, ID: id, Text: text, Origin: core.OriginBatch})
}

// noSpeechProb takes the highest per-segment no_speech_prob in the verbose
// response, since the wire format names a single scalar (SPEC_FULL §6.3)
// but go-openai's verbose-JSON reports it per segment; the most confident
// "this was silence" judgment among segments is the conservative choice.
func noSpeechProb(resp openai.AudioResponse) float64 {
	var max float64
	for _, seg := range resp.Segments {
		if seg.NoSpeechProb > max {
			max = seg.NoSpeechProb
		}
	}
	return max
}

// wavDuration reads just enough of the RIFF/WAVE header to compute playback
// duration without decoding samples.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 44)
	if _, err := f.Read(header); err != nil {
		return 0, fmt.Errorf("read wav header: %w", err)
	}
	byteRate := binary.LittleEndian.Uint32(header[28:32])
	if byteRate == 0 {
		return 0, fmt.Errorf("invalid wav header: zero byte rate")
	}
	dataSize := binary.LittleEndian.Uint32(header[40:44])
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

// detectsVoice implements the VAD heuristic from SPEC_FULL §4.8: 20ms
// frames, energy threshold at 2x the rolling median of the first 200ms
// post-ignore, requiring >=3 contiguous voiced frames.
func detectsVoice(path string, ignoreStart time.Duration) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 44)
	if _, err := f.Read(header); err != nil {
		return false, fmt.Errorf("read wav header: %w", err)
	}
	sampleRate := int(binary.LittleEndian.Uint32(header[24:28]))
	if sampleRate == 0 {
		return false, fmt.Errorf("invalid wav header: zero sample rate")
	}

	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	samples := bytesToSamples(data)

	frameLen := sampleRate / 50 // 20ms
	if frameLen == 0 {
		return false, fmt.Errorf("sample rate too low for VAD framing")
	}

	ignoreSamples := int(ignoreStart.Seconds() * float64(sampleRate))
	if ignoreSamples > len(samples) {
		ignoreSamples = len(samples)
	}
	usable := samples[ignoreSamples:]

	frames := frameEnergies(usable, frameLen)
	if len(frames) == 0 {
		return false, nil
	}

	windowFrames := int(200 * time.Millisecond / (time.Second / time.Duration(sampleRate/frameLen)))
	if windowFrames > len(frames) {
		windowFrames = len(frames)
	}
	threshold := 2 * median(frames[:windowFrames])

	contiguous := 0
	for _, e := range frames {
		if e > threshold {
			contiguous++
			if contiguous >= 3 {
				return true, nil
			}
		} else {
			contiguous = 0
		}
	}
	return false, nil
}

func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func frameEnergies(samples []int16, frameLen int) []float64 {
	var energies []float64
	for start := 0; start+frameLen <= len(samples); start += frameLen {
		var sumSquares float64
		for _, s := range samples[start : start+frameLen] {
			f := float64(s)
			sumSquares += f * f
		}
		energies = append(energies, math.Sqrt(sumSquares/float64(frameLen)))
	}
	return energies
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
