// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cleanup sweeps expired credentials on a fixed interval.

Two sweeps run back to back: expired session rows and expired refresh
tokens. Both are idempotent and safe alongside live request traffic; a
failing sweep is logged and the next tick runs regardless.
*/
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/flowra/internal/users/auth"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = time.Hour

// Scheduler owns the periodic sweep goroutine.
type Scheduler struct {
	sessionRepository auth.SessionRepository
	refreshRepository auth.RefreshTokenRepository
	interval          time.Duration
	logger            *slog.Logger

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler constructs a cleanup [Scheduler]. A non-positive interval
// falls back to [DefaultInterval].
func NewScheduler(
	sessions auth.SessionRepository,
	refreshTokens auth.RefreshTokenRepository,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		sessionRepository: sessions,
		refreshRepository: refreshTokens,
		interval:          interval,
		logger:            logger,
		quit:              make(chan struct{}),
	}
}

// Start launches the sweep loop. One sweep runs immediately so a restart
// does not wait a full interval to clear backlog.
func (scheduler *Scheduler) Start() {
	scheduler.wg.Add(1)

	go func() {
		defer scheduler.wg.Done()

		ticker := time.NewTicker(scheduler.interval)
		defer ticker.Stop()

		scheduler.Sweep(context.Background())

		for {
			select {
			case <-scheduler.quit:
				return
			case <-ticker.C:
				scheduler.Sweep(context.Background())
			}
		}
	}()
}

// Stop signals the loop to exit and waits for an in-flight sweep to finish.
func (scheduler *Scheduler) Stop() {
	close(scheduler.quit)
	scheduler.wg.Wait()
}

/*
Sweep runs both passes once.

Description: Sessions are iterated and their stored expiry parsed; rows in
the past are deleted, rows with unparsable expiries are kept and logged —
deleting data that merely failed to parse would turn an encoding bug into
data loss. Refresh tokens are removed in one statement. Errors end the
affected pass only.

Parameters:
  - ctx: context.Context
*/
func (scheduler *Scheduler) Sweep(ctx context.Context) {
	scheduler.sweepSessions(ctx)
	scheduler.sweepRefreshTokens(ctx)
}

func (scheduler *Scheduler) sweepSessions(ctx context.Context) {
	sessions, err := scheduler.sessionRepository.List(ctx)
	if err != nil {
		scheduler.logger.ErrorContext(ctx, "cleanup_session_list_failed",
			slog.String("error", err.Error()),
		)
		return
	}

	now := time.Now()
	removed := 0
	unparsable := 0

	for _, session := range sessions {
		expiry, err := auth.ParseExpiry(session.ExpiresAt)
		if err != nil {
			unparsable++
			scheduler.logger.WarnContext(ctx, "cleanup_session_unparsable_expiry",
				slog.String("session_id", session.ID),
				slog.String("expires_at", session.ExpiresAt),
			)
			continue
		}

		if expiry.Before(now) {
			if err := scheduler.sessionRepository.Delete(ctx, session.ID); err != nil {
				scheduler.logger.ErrorContext(ctx, "cleanup_session_delete_failed",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			removed++
		}
	}

	scheduler.logger.InfoContext(ctx, "cleanup_sessions_swept",
		slog.Int("scanned", len(sessions)),
		slog.Int("removed", removed),
		slog.Int("unparsable_kept", unparsable),
	)
}

func (scheduler *Scheduler) sweepRefreshTokens(ctx context.Context) {
	removed, err := scheduler.refreshRepository.DeleteExpired(ctx, time.Now())
	if err != nil {
		scheduler.logger.ErrorContext(ctx, "cleanup_refresh_sweep_failed",
			slog.String("error", err.Error()),
		)
		return
	}

	scheduler.logger.InfoContext(ctx, "cleanup_refresh_tokens_swept",
		slog.Int64("removed", removed),
	)
}
