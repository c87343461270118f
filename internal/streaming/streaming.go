// Package streaming runs the realtime WebSocket transcription preview
// (SPEC_FULL §4.7 / C6), grounded on
// LeonardoTrapani-hyprvoice/internal/transcriber/adapter_openai_realtime.go's
// gorilla/websocket session-config-then-stream pattern. Failures here are
// logged and swallowed: streaming can never fail a recording (SPEC_FULL §7).
package streaming

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/core"
)

// inputSampleRate must match internal/audio.SampleRateHz, the rate
// Capture is actually opened at (SPEC_FULL §4.4: 16kHz mono s16);
// streaming can't import audio without a cycle (audio imports streaming
// to drive the realtime fan-out leg), so this is a documented invariant
// rather than a shared constant. targetSampleRate is what the realtime
// session expects (SPEC_FULL §4.7).
const (
	inputSampleRate  = 16000
	targetSampleRate = 24000
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string      `json:"modalities,omitempty"`
	InputAudioFormat        string        `json:"input_audio_format,omitempty"`
	InputAudioTranscription *transcribeCfg `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection `json:"turn_detection,omitempty"`
}

type transcribeCfg struct {
	Model string `json:"model,omitempty"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type inputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// serverEvent is the subset of inbound message shapes the aggregator cares
// about (SPEC_FULL §6.2): everything else is ignored.
type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// Client streams one recording's audio to the realtime endpoint and
// forwards transcript deltas to the TranscriptAggregator.
type Client struct {
	url        string
	apiKey     string
	logger     *slog.Logger
	dialer     *websocket.Dialer
	connectFor time.Duration
}

// NewClient constructs a streaming Client against the configured realtime
// endpoint.
func NewClient(url, apiKey string, connectTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		logger:     logger,
		dialer:     websocket.DefaultDialer,
		connectFor: connectTimeout,
	}
}

// Run connects, streams PCM read from pcm until it is closed or ctx is
// cancelled, and hands every delta to the aggregator. It never returns an
// error to the caller: every failure is logged and this cycle's streaming
// preview is simply abandoned (SPEC_FULL §4.7 failure taxonomy).
func (c *Client) Run(ctx context.Context, id clock.RecordingId, pcm <-chan []byte, emit core.Emit) {
	agg := newAggregator()

	connectCtx, cancel := context.WithTimeout(ctx, c.connectFor)
	conn, resp, err := c.dialer.DialContext(connectCtx, c.url, c.authHeader())
	cancel()
	if err != nil {
		c.logf("connect failed: %v", err)
		if resp != nil {
			_ = resp.Body.Close()
		}
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:              []string{"text"},
			InputAudioFormat:        "pcm16",
			InputAudioTranscription: &transcribeCfg{Model: "gpt-4o-transcribe"},
			TurnDetection:           &turnDetection{Type: "none"},
		},
	}); err != nil {
		c.logf("session configure failed: %v", err)
		return
	}

	done := make(chan struct{})
	go c.readLoop(conn, agg, id, emit, done)

	c.sendLoop(ctx, conn, pcm)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
}

// sendLoop forwards downsampled, base64-encoded chunks until pcm closes or
// ctx is cancelled.
func (c *Client) sendLoop(ctx context.Context, conn *websocket.Conn, pcm <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-pcm:
			if !ok {
				return
			}
			msg := inputAudioAppend{
				Type:  "input_audio_buffer.append",
				Audio: base64.StdEncoding.EncodeToString(downsample(chunk)),
			}
			if err := conn.WriteJSON(msg); err != nil {
				c.logf("mid-stream disconnect on write: %v", err)
				return
			}
		}
	}
}

// readLoop parses incoming server events and forwards deltas through agg.
// It never terminates the reducer's cycle: any error here is logged and the
// loop simply stops servicing this connection.
func (c *Client) readLoop(conn *websocket.Conn, agg *aggregator, id clock.RecordingId, emit core.Emit, done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logf("mid-stream disconnect on read: %v", err)
			return
		}
		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.logf("malformed message: %v", err)
			continue
		}
		switch {
		case hasSuffix(event.Type, "transcription.delta"):
			if delta := agg.onDelta(event.Transcript); delta != "" {
				emit(core.Event{Kind: core.EventPartialDelta, ID: id, Text: delta})
			}
		case hasSuffix(event.Type, "transcription.done"):
			agg.onDone(event.Transcript)
		}
	}
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(fmt.Sprintf("streaming: "+format, args...))
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// downsample converts 16kHz PCM16 mono to the realtime endpoint's 24kHz
// input via linear interpolation, mirroring the teacher's resample step
// (just the inverse direction: the teacher downsamples 48kHz with a 2:1
// mean; SPEC_FULL §4.7 asks for the same "simple mean" idea applied to our
// 16kHz source going up to 24kHz, so linear interpolation is the closest
// stdlib-only equivalent for an upsample).
func downsample(input []byte) []byte {
	if len(input) < 2 {
		return input
	}
	numIn := len(input) / 2
	numOut := numIn * targetSampleRate / inputSampleRate
	out := make([]byte, numOut*2)

	sample := func(i int) int16 {
		if i*2+1 >= len(input) {
			i = numIn - 1
		}
		return int16(uint16(input[i*2]) | uint16(input[i*2+1])<<8)
	}

	for i := 0; i < numOut; i++ {
		srcPos := float64(i) * inputSampleRate / targetSampleRate
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		a, b := sample(srcIdx), sample(srcIdx+1)
		v := int16(float64(a)*(1-frac) + float64(b)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
