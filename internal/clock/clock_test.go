package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRecordingIdIsUniqueAndNonEmpty(t *testing.T) {
	a := NewRecordingId()
	b := NewRecordingId()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestFakeClockAdvances(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	fake := NewFake(start)
	require.Equal(t, start, fake.Now())

	next := fake.Advance(500 * time.Millisecond)
	require.Equal(t, start.Add(500*time.Millisecond), next)
	require.Equal(t, next, fake.Now())
}

func TestSystemClockReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	after := time.Now()
	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}
