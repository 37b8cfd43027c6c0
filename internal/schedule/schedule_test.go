package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/allyourbase/oraclone/internal/testutil"
)

func TestNextTime(t *testing.T) {
	ref := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expr    string
		tz      string
		want    time.Time
		wantErr string
	}{
		{"nightly", "0 2 * * *", "", time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), ""},
		{"hourly", "0 * * * *", "", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), ""},
		{"timezone", "0 2 * * *", "Europe/Warsaw", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), ""},
		{"bad expression", "every night", "", time.Time{}, `invalid cron expression "every night"`},
		{"bad timezone", "0 2 * * *", "Mars/Olympus", time.Time{}, `invalid timezone "Mars/Olympus"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextTime(tt.expr, tt.tz, ref)
			if tt.wantErr != "" {
				testutil.ErrorContains(t, err, tt.wantErr)
				return
			}
			testutil.NoError(t, err)
			testutil.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New("61 * * * *", "", testutil.DiscardLogger())
	testutil.ErrorContains(t, err, "invalid cron expression")
}

func TestRunExecutesAtEachTick(t *testing.T) {
	s, err := New("0 2 * * *", "", testutil.DiscardLogger())
	testutil.NoError(t, err)

	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var waits []time.Duration
	s.now = func() time.Time { return clock }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		clock = clock.Add(d)
		ch := make(chan time.Time, 1)
		ch <- clock
		return ch
	}
	var ticks []time.Time
	s.OnNext = func(next time.Time) { ticks = append(ticks, next) }

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	err = s.Run(ctx, func(context.Context) error {
		runs++
		if runs == 1 {
			return errors.New("can not connect to source")
		}
		cancel()
		return nil
	})
	testutil.NoError(t, err)
	testutil.Equal(t, 2, runs)
	testutil.SliceLen(t, ticks, 2)
	testutil.True(t, ticks[0].Equal(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)))
	testutil.True(t, ticks[1].Equal(time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)))
	testutil.Equal(t, 18*time.Hour, waits[0])
	testutil.Equal(t, 24*time.Hour, waits[1])
}

func TestRunStopsWhileWaiting(t *testing.T) {
	s, err := New("0 2 * * *", "", testutil.DiscardLogger())
	testutil.NoError(t, err)
	s.after = func(time.Duration) <-chan time.Time { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	testutil.NoError(t, s.Run(ctx, func(context.Context) error { ran = true; return nil }))
	testutil.False(t, ran)
}
