// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/notifier"
)

// fakeClock advances instantly whenever the monitor sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (clock *fakeClock) Now() time.Time { return clock.now }

func (clock *fakeClock) After(d time.Duration) <-chan time.Time {
	clock.sleeps = append(clock.sleeps, d)
	clock.now = clock.now.Add(d)

	fired := make(chan time.Time, 1)
	fired <- clock.now
	return fired
}

type sendRecorder struct {
	notices []*notifier.Notice
}

func (recorder *sendRecorder) send(notice *notifier.Notice) error {
	recorder.notices = append(recorder.notices, notice)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # Adaptive Schedule

/*
TestSleepFor verifies the remaining-lifetime to poll-interval table.
*/
func TestSleepFor(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      time.Duration
	}{
		{"far from expiry", 30 * time.Minute, 5 * time.Minute},
		{"just over ten minutes", 10*time.Minute + time.Second, 5 * time.Minute},
		{"between five and ten minutes", 7 * time.Minute, 2 * time.Minute},
		{"between two and five minutes", 3 * time.Minute, time.Minute},
		{"between one and two minutes", 90 * time.Second, 30 * time.Second},
		{"under a minute", 45 * time.Second, 10 * time.Second},
		{"final seconds", 8 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, notifier.SleepFor(tt.remaining))
		})
	}
}

/*
TestShouldWarn verifies the boundary: exactly 60 seconds warns, 61 does not.
*/
func TestShouldWarn(t *testing.T) {
	assert.True(t, notifier.ShouldWarn(60*time.Second))
	assert.True(t, notifier.ShouldWarn(45*time.Second))
	assert.True(t, notifier.ShouldWarn(0))
	assert.False(t, notifier.ShouldWarn(61*time.Second))
	assert.False(t, notifier.ShouldWarn(5*time.Minute))
}

// # Monitor Loop

/*
TestMonitor_WarnsExactlyOnce verifies a token 45 seconds from expiry
produces one warning and the monitor terminates.
*/
func TestMonitor_WarnsExactlyOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	recorder := &sendRecorder{}

	monitor := notifier.NewMonitor(clock.now.Add(45*time.Second), clock, discardLogger())
	require.NoError(t, monitor.Run(context.Background(), recorder.send))

	require.Len(t, recorder.notices, 1)
	notice := recorder.notices[0]
	assert.True(t, notice.CallRefresh)
	assert.Equal(t, int64(45), notice.TimeRemainingSeconds)
	assert.NotEmpty(t, notice.Message)
	assert.Empty(t, clock.sleeps, "a poll inside the threshold warns without sleeping")
}

/*
TestMonitor_SleepsThenWarns verifies a token just outside the threshold
sleeps per the schedule before warning once.
*/
func TestMonitor_SleepsThenWarns(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	recorder := &sendRecorder{}

	// 61s remaining: first poll emits nothing and schedules a 30s sleep
	monitor := notifier.NewMonitor(clock.now.Add(61*time.Second), clock, discardLogger())
	require.NoError(t, monitor.Run(context.Background(), recorder.send))

	require.Len(t, recorder.notices, 1)
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 30*time.Second, clock.sleeps[0])
	assert.Equal(t, int64(31), recorder.notices[0].TimeRemainingSeconds)
}

/*
TestMonitor_AdaptiveDescent verifies a distant expiry walks down the
schedule and still ends in exactly one warning.
*/
func TestMonitor_AdaptiveDescent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	recorder := &sendRecorder{}

	monitor := notifier.NewMonitor(clock.now.Add(12*time.Minute), clock, discardLogger())
	require.NoError(t, monitor.Run(context.Background(), recorder.send))

	require.Len(t, recorder.notices, 1)
	require.NotEmpty(t, clock.sleeps)
	assert.Equal(t, 5*time.Minute, clock.sleeps[0], "first sleep follows the far-from-expiry interval")

	for index := 1; index < len(clock.sleeps); index++ {
		assert.LessOrEqual(t, clock.sleeps[index], clock.sleeps[index-1], "sleeps shorten as expiry nears")
	}
}

/*
TestMonitor_CancelledOnDisconnect verifies cancellation stops the loop
without a warning.
*/
func TestMonitor_CancelledOnDisconnect(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	recorder := &sendRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	monitor := notifier.NewMonitor(clock.now.Add(time.Hour), clock, discardLogger())
	require.NoError(t, monitor.Run(ctx, recorder.send))

	assert.Empty(t, recorder.notices)
}

/*
TestMonitor_ReconnectWarnsAgain verifies a fresh monitor for the same token
warns independently of an earlier one.
*/
func TestMonitor_ReconnectWarnsAgain(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	expiry := clock.now.Add(30 * time.Second)
	first := &sendRecorder{}
	second := &sendRecorder{}

	require.NoError(t, notifier.NewMonitor(expiry, clock, discardLogger()).Run(context.Background(), first.send))
	require.NoError(t, notifier.NewMonitor(expiry, clock, discardLogger()).Run(context.Background(), second.send))

	assert.Len(t, first.notices, 1)
	assert.Len(t, second.notices, 1)
}
