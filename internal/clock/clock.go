// Package clock provides the monotonic time source and RecordingId
// generator used by the interaction core (SPEC_FULL §3.1 / C1).
package clock

import (
	"time"

	"github.com/google/uuid"
)

// RecordingId is opaque, globally unique, and stamped on every event and
// effect that pertains to one cycle. The reducer drops any completion event
// whose RecordingId does not match the current cycle (SPEC_FULL §3.1).
type RecordingId string

// NewRecordingId mints a fresh, globally unique identifier.
func NewRecordingId() RecordingId {
	return RecordingId(uuid.NewString())
}

// Clock is the monotonic time source consulted at Arming; State.started_at
// must never be a wall-clock read (SPEC_FULL §3.2).
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now, whose monotonic reading
// is preserved by Go's time.Time as long as values are never round-tripped
// through wall-clock serialization.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake is a deterministic Clock for reducer and effect-runner tests.
type Fake struct {
	current time.Time
}

// NewFake returns a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (f *Fake) Now() time.Time { return f.current }

// Advance moves the fake clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.current = f.current.Add(d)
	return f.current
}
