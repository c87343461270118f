package streaming

// aggregator implements TranscriptAggregator (SPEC_FULL §4.7 / C7): it
// accumulates streaming deltas into a running string and reports only the
// newly-arrived delta back to the caller, since the reducer wants
// PartialDelta{id, text} to carry the delta, not the cumulative string.
type aggregator struct {
	text string
	// lastDone is the most recent non-empty "done" transcript, kept for
	// diagnostics only; it never replaces text.
	lastDone string
}

func newAggregator() *aggregator {
	return &aggregator{}
}

// onDelta appends an incoming delta to the running transcript and returns
// it unchanged; the realtime protocol already sends deltas, not cumulative
// snapshots, so no diffing is needed here.
func (a *aggregator) onDelta(delta string) string {
	if delta == "" {
		return ""
	}
	a.text += delta
	return delta
}

// onDone treats a "done" message as advisory (SPEC_FULL §4.7): if it
// disagrees with the accumulated text, the accumulated text still wins,
// since streaming results never become authoritative — only BatchTranscriber
// produces TranscribeOk.
func (a *aggregator) onDone(final string) {
	if final != "" {
		a.lastDone = final
	}
}
