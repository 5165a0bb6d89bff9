// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cleanup_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/cleanup"
	"github.com/taibuivan/flowra/internal/users/auth"
)

// # Fakes

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
	listErr  error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*auth.Session{}}
}

func (repository *fakeSessionRepo) Create(_ context.Context, session *auth.Session) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.sessions[session.ID] = session
	return nil
}

func (repository *fakeSessionRepo) FindByToken(_ context.Context, token string) (*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, session := range repository.sessions {
		if session.Token == token {
			return session, nil
		}
	}
	return nil, fmt.Errorf("no rows")
}

func (repository *fakeSessionRepo) Delete(_ context.Context, id string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	delete(repository.sessions, id)
	return nil
}

func (repository *fakeSessionRepo) DeleteByToken(_ context.Context, token string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for id, session := range repository.sessions {
		if session.Token == token {
			delete(repository.sessions, id)
		}
	}
	return nil
}

func (repository *fakeSessionRepo) DeleteByUser(_ context.Context, userID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for id, session := range repository.sessions {
		if session.UserID == userID {
			delete(repository.sessions, id)
		}
	}
	return nil
}

func (repository *fakeSessionRepo) List(_ context.Context) ([]*auth.Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	if repository.listErr != nil {
		return nil, repository.listErr
	}
	sessions := make([]*auth.Session, 0, len(repository.sessions))
	for _, session := range repository.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (repository *fakeSessionRepo) count() int {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return len(repository.sessions)
}

func (repository *fakeSessionRepo) has(id string) bool {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	_, ok := repository.sessions[id]
	return ok
}

type fakeRefreshRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int64
	err     error
}

func (repository *fakeRefreshRepo) Create(_ context.Context, _ *auth.RefreshToken) error {
	return nil
}

func (repository *fakeRefreshRepo) FindByToken(_ context.Context, _ string) (*auth.RefreshToken, error) {
	return nil, fmt.Errorf("no rows")
}

func (repository *fakeRefreshRepo) RevokeAllForUser(_ context.Context, _ string) error {
	return nil
}

func (repository *fakeRefreshRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	if repository.err != nil {
		return 0, repository.err
	}
	repository.cutoffs = append(repository.cutoffs, cutoff)
	return repository.removed, nil
}

func (repository *fakeRefreshRepo) sweepCount() int {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return len(repository.cutoffs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionRow(id string, expiresAt string) *auth.Session {
	return &auth.Session{
		ID:        id,
		UserID:    "user-" + id,
		Token:     "token-" + id,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

// # Tests

/*
TestSweep_RemovesExpiredSessions

Description:

	A single sweep deletes sessions whose stored expiry is in the past,
	keeps live sessions, and keeps rows whose expiry cannot be parsed.
*/
func TestSweep_RemovesExpiredSessions(t *testing.T) {
	sessions := newFakeSessionRepo()
	refresh := &fakeRefreshRepo{}

	expired := sessionRow("expired", auth.FormatExpiry(time.Now().Add(-time.Hour)))
	live := sessionRow("live", auth.FormatExpiry(time.Now().Add(time.Hour)))
	garbage := sessionRow("garbage", "not-a-timestamp")

	require.NoError(t, sessions.Create(context.Background(), expired))
	require.NoError(t, sessions.Create(context.Background(), live))
	require.NoError(t, sessions.Create(context.Background(), garbage))

	scheduler := cleanup.NewScheduler(sessions, refresh, time.Hour, discardLogger())
	scheduler.Sweep(context.Background())

	assert.False(t, sessions.has("expired"))
	assert.True(t, sessions.has("live"))
	assert.True(t, sessions.has("garbage"), "unparsable expiries must be kept")
	assert.Equal(t, 2, sessions.count())
}

/*
TestSweep_HandlesLegacyExpiryEncodings

Description:

	Expired rows are removed regardless of which historical expiry
	encoding wrote them.
*/
func TestSweep_HandlesLegacyExpiryEncodings(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)

	encodings := []string{
		past.Format(time.RFC3339),
		past.UTC().Format("2006-01-02 15:04:05"),
		strconv.FormatInt(past.Unix(), 10),
		strconv.FormatInt(past.UnixMilli(), 10),
	}

	sessions := newFakeSessionRepo()
	for index, encoded := range encodings {
		id := fmt.Sprintf("legacy-%d", index)
		require.NoError(t, sessions.Create(context.Background(), sessionRow(id, encoded)))
	}

	scheduler := cleanup.NewScheduler(sessions, &fakeRefreshRepo{}, time.Hour, discardLogger())
	scheduler.Sweep(context.Background())

	assert.Equal(t, 0, sessions.count())
}

/*
TestSweep_DelegatesRefreshTokens

Description:

	The refresh-token pass hands the repository a cutoff at the sweep
	moment, and a session-list failure does not prevent it from running.
*/
func TestSweep_DelegatesRefreshTokens(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.listErr = fmt.Errorf("database offline")
	refresh := &fakeRefreshRepo{removed: 7}

	before := time.Now()
	scheduler := cleanup.NewScheduler(sessions, refresh, time.Hour, discardLogger())
	scheduler.Sweep(context.Background())
	after := time.Now()

	require.Equal(t, 1, refresh.sweepCount())
	cutoff := refresh.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

/*
TestSweep_RefreshErrorDoesNotPanic

Description:

	A failing refresh-token pass is logged and swallowed; the scheduler
	stays usable for the next tick.
*/
func TestSweep_RefreshErrorDoesNotPanic(t *testing.T) {
	sessions := newFakeSessionRepo()
	refresh := &fakeRefreshRepo{err: fmt.Errorf("database offline")}

	scheduler := cleanup.NewScheduler(sessions, refresh, time.Hour, discardLogger())

	assert.NotPanics(t, func() {
		scheduler.Sweep(context.Background())
		scheduler.Sweep(context.Background())
	})
}

/*
TestStartStop_RunsImmediateSweep

Description:

	Start performs one sweep right away without waiting for the first
	tick, and Stop returns promptly.
*/
func TestStartStop_RunsImmediateSweep(t *testing.T) {
	sessions := newFakeSessionRepo()
	expired := sessionRow("expired", auth.FormatExpiry(time.Now().Add(-time.Minute)))
	require.NoError(t, sessions.Create(context.Background(), expired))

	refresh := &fakeRefreshRepo{}

	scheduler := cleanup.NewScheduler(sessions, refresh, time.Hour, discardLogger())
	scheduler.Start()

	assert.Eventually(t, func() bool {
		return refresh.sweepCount() >= 1 && sessions.count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
