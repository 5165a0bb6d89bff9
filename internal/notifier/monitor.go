// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notifier pushes a single "refresh soon" warning to connected clients
before their access token expires.

One monitor goroutine serves one WebSocket connection; monitors share
nothing. Polling adapts to the time remaining, from five-minute sleeps far
from expiry down to five-second sleeps at the end. Once the warning is sent
the monitor terminates; a reconnecting client gets a fresh monitor.
*/
package notifier

import (
	"context"
	"log/slog"
	"time"
)

// WarnThreshold is the remaining lifetime at which the warning fires.
const WarnThreshold = 60 * time.Second

// Notice is the single push message of this channel.
type Notice struct {
	CallRefresh          bool   `json:"call_refresh"`
	TimeRemainingSeconds int64  `json:"time_remaining_seconds"`
	Message              string `json:"message"`
}

// Clock abstracts time for the monitor loop so tests can drive it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock is the production [Clock].
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewClock returns the wall [Clock].
func NewClock() Clock { return realClock{} }

// SleepFor maps the remaining token lifetime to the next poll interval.
func SleepFor(remaining time.Duration) time.Duration {
	switch {
	case remaining > 10*time.Minute:
		return 5 * time.Minute
	case remaining > 5*time.Minute:
		return 2 * time.Minute
	case remaining > 2*time.Minute:
		return time.Minute
	case remaining > time.Minute:
		return 30 * time.Second
	case remaining > 10*time.Second:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

// ShouldWarn reports whether a poll at this remaining lifetime fires the
// warning. Exactly at the threshold counts; one second above does not.
func ShouldWarn(remaining time.Duration) bool {
	return remaining <= WarnThreshold
}

// Monitor watches one token's expiry for one connection.
type Monitor struct {
	expiry time.Time
	clock  Clock
	logger *slog.Logger
}

// NewMonitor constructs a monitor for a token expiring at the given time.
func NewMonitor(expiry time.Time, clock Clock, logger *slog.Logger) *Monitor {
	return &Monitor{expiry: expiry, clock: clock, logger: logger}
}

/*
Run polls until the warning fires or the context is cancelled.

Description: Each iteration computes the remaining lifetime; at or below
the threshold it sends the notice through send and returns. Otherwise it
sleeps per the adaptive schedule. The notice is sent at most once per
monitor; disconnect cancels the context and ends the loop silently.

Parameters:
  - ctx: context.Context (cancelled on client disconnect)
  - send: func(*Notice) error (delivery to the connected client)

Returns:
  - err: Delivery failure; nil on clean termination or cancellation
*/
func (monitor *Monitor) Run(ctx context.Context, send func(*Notice) error) error {

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		remaining := monitor.expiry.Sub(monitor.clock.Now())

		if ShouldWarn(remaining) {
			seconds := int64(remaining / time.Second)
			if seconds < 0 {
				seconds = 0
			}

			notice := &Notice{
				CallRefresh:          true,
				TimeRemainingSeconds: seconds,
				Message:              "Access token is about to expire; refresh now",
			}
			if err := send(notice); err != nil {
				return err
			}

			monitor.logger.DebugContext(ctx, "notifier_warning_sent",
				slog.Int64("time_remaining_seconds", seconds),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-monitor.clock.After(SleepFor(remaining)):
		}
	}
}
