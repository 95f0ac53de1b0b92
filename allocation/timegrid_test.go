package allocation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeGrid(t *testing.T) {
	tests := []struct {
		name        string
		granularity time.Duration
		wantErr     bool
	}{
		{"fifteen minutes", 15 * time.Minute, false},
		{"thirty minutes", 30 * time.Minute, false},
		{"one hour", time.Hour, false},
		{"below minimum", 3 * time.Minute, true},
		{"not whole minutes", 90 * time.Second, true},
		{"does not divide a day", 7 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeGrid(tt.granularity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInterval)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeSnapping(t *testing.T) {
	grid, err := NewTimeGrid(15 * time.Minute)
	require.NoError(t, err)

	// Begin snaps down, end snaps up.
	iv, err := grid.Normalize(Monday, NewTimeOfDay(9, 10), NewTimeOfDay(9, 50))
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(9, 0), iv.Start)
	assert.Equal(t, NewTimeOfDay(10, 0), iv.End)

	// Already aligned input passes through unchanged.
	iv, err = grid.Normalize(Friday, NewTimeOfDay(12, 0), NewTimeOfDay(13, 30))
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(12, 0), iv.Start)
	assert.Equal(t, NewTimeOfDay(13, 30), iv.End)

	// End-of-day boundary is legal for interval ends.
	iv, err = grid.Normalize(Sunday, NewTimeOfDay(23, 45), EndOfDay)
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, iv.End)
}

func TestNormalizeRejectsMalformedInput(t *testing.T) {
	grid, err := NewTimeGrid(30 * time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		weekday    Weekday
		begin, end TimeOfDay
	}{
		{"zero length", Monday, NewTimeOfDay(10, 0), NewTimeOfDay(10, 0)},
		{"negative length", Monday, NewTimeOfDay(11, 0), NewTimeOfDay(10, 0)},
		{"negative begin", Monday, -10, NewTimeOfDay(10, 0)},
		{"end past midnight", Monday, NewTimeOfDay(23, 0), EndOfDay + 30},
		{"invalid weekday", Weekday(9), NewTimeOfDay(9, 0), NewTimeOfDay(10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grid.Normalize(tt.weekday, tt.begin, tt.end)
			assert.ErrorIs(t, err, ErrInvalidInterval)

			var ie *InvalidIntervalError
			assert.True(t, errors.As(err, &ie))
		})
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	a := Interval{Weekday: Monday, Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 0)}

	// Back-to-back intervals sharing a boundary never overlap.
	after := Interval{Weekday: Monday, Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(11, 0)}
	assert.False(t, a.Overlaps(after))
	assert.False(t, after.Overlaps(a))

	// One minute of shared time is a conflict.
	overlapping := Interval{Weekday: Monday, Start: NewTimeOfDay(9, 59), End: NewTimeOfDay(11, 0)}
	assert.True(t, a.Overlaps(overlapping))
	assert.True(t, overlapping.Overlaps(a))

	// Containment is a conflict.
	inner := Interval{Weekday: Monday, Start: NewTimeOfDay(9, 15), End: NewTimeOfDay(9, 45)}
	assert.True(t, a.Overlaps(inner))
	assert.True(t, inner.Overlaps(a))

	// Same times on another weekday never conflict.
	otherDay := Interval{Weekday: Tuesday, Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 0)}
	assert.False(t, a.Overlaps(otherDay))
}

func TestParseTimeOfDay(t *testing.T) {
	v, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(9, 30), v)

	v, err = ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, v)

	_, err = ParseTimeOfDay("25:00")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
