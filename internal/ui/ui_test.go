package ui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vokey/transcribe/internal/core"
	"github.com/vokey/transcribe/internal/waveform"
)

type recordingSink struct {
	events []string
	payload []any
}

func (r *recordingSink) Publish(event string, payload any) {
	r.events = append(r.events, event)
	r.payload = append(r.payload, payload)
}

func TestProjectMapsStateKindToTag(t *testing.T) {
	s := core.State{Kind: core.KindDone, Text: "hello"}
	snap := Project(s)
	require.Equal(t, "done", snap.State)
	require.Equal(t, "hello", snap.Text)
}

func TestProjectCarriesErrorFields(t *testing.T) {
	s := core.State{Kind: core.KindError, ErrMessage: "boom", LastGoodText: "partial"}
	snap := Project(s)
	require.Equal(t, "error", snap.State)
	require.Equal(t, "boom", snap.ErrMessage)
	require.Equal(t, "partial", snap.LastGoodText)
}

func TestEmitterEmitPublishesStateUpdate(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.Emit(core.State{Kind: core.KindIdle})
	require.Equal(t, []string{"state-update"}, sink.events)
}

func TestEmitterOnWaveformPublishesWaveformUpdate(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.OnWaveform(waveform.Update{})
	require.Equal(t, []string{"waveform-update"}, sink.events)
}

func TestEmitterNilSinkIsNoop(t *testing.T) {
	e := NewEmitter(nil)
	require.NotPanics(t, func() {
		e.Emit(core.State{Kind: core.KindIdle})
		e.OnWaveform(waveform.Update{})
	})
}
