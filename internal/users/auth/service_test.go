// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/users/auth"
)

// # In-Memory Fakes

type fakeUserRepo struct {
	users map[string]*auth.User // by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*auth.User{}}
}

func (repo *fakeUserRepo) FindByID(_ context.Context, id string) (*auth.User, error) {
	if user, ok := repo.users[id]; ok {
		return user, nil
	}
	return nil, apperr.NotFound("User not found")
}

func (repo *fakeUserRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	for _, user := range repo.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, apperr.NotFound("User not found with this username")
}

func (repo *fakeUserRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, user := range repo.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, apperr.NotFound("User not found with this email")
}

func (repo *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	repo.users[user.ID] = user
	return nil
}

func (repo *fakeUserRepo) UpdateUsername(_ context.Context, userID, username string) error {
	repo.users[userID].Username = username
	return nil
}

func (repo *fakeUserRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	repo.users[userID].PasswordHash = newHash
	return nil
}

func (repo *fakeUserRepo) Delete(_ context.Context, id string) error {
	delete(repo.users, id)
	return nil
}

func (repo *fakeUserRepo) Count(_ context.Context) (int64, error) {
	return int64(len(repo.users)), nil
}

type fakeSessionRepo struct {
	sessions map[string]*auth.Session // by token
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*auth.Session{}}
}

func (repo *fakeSessionRepo) Create(_ context.Context, session *auth.Session) error {
	repo.sessions[session.Token] = session
	return nil
}

func (repo *fakeSessionRepo) FindByToken(_ context.Context, token string) (*auth.Session, error) {
	if session, ok := repo.sessions[token]; ok {
		return session, nil
	}
	return nil, apperr.NotFound("Session not found")
}

func (repo *fakeSessionRepo) Delete(_ context.Context, id string) error {
	for token, session := range repo.sessions {
		if session.ID == id {
			delete(repo.sessions, token)
		}
	}
	return nil
}

func (repo *fakeSessionRepo) DeleteByToken(_ context.Context, token string) error {
	delete(repo.sessions, token)
	return nil
}

func (repo *fakeSessionRepo) DeleteByUser(_ context.Context, userID string) error {
	for token, session := range repo.sessions {
		if session.UserID == userID {
			delete(repo.sessions, token)
		}
	}
	return nil
}

func (repo *fakeSessionRepo) List(_ context.Context) ([]*auth.Session, error) {
	var all []*auth.Session
	for _, session := range repo.sessions {
		all = append(all, session)
	}
	return all, nil
}

type fakeRefreshRepo struct {
	tokens map[string]*auth.RefreshToken // by token
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*auth.RefreshToken{}}
}

func (repo *fakeRefreshRepo) Create(_ context.Context, token *auth.RefreshToken) error {
	repo.tokens[token.Token] = token
	return nil
}

func (repo *fakeRefreshRepo) FindByToken(_ context.Context, token string) (*auth.RefreshToken, error) {
	if row, ok := repo.tokens[token]; ok {
		return row, nil
	}
	return nil, apperr.NotFound("Refresh token not found")
}

func (repo *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID string) error {
	for _, row := range repo.tokens {
		if row.UserID == userID {
			row.IsRevoked = true
		}
	}
	return nil
}

func (repo *fakeRefreshRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for token, row := range repo.tokens {
		if !row.ExpiresAt.After(cutoff) {
			delete(repo.tokens, token)
			removed++
		}
	}
	return removed, nil
}

type fakeResetRepo struct {
	tokens map[string]string // token → userID
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: map[string]string{}}
}

func (repo *fakeResetRepo) Set(_ context.Context, token, userID string, _ time.Duration) error {
	repo.tokens[token] = userID
	return nil
}

func (repo *fakeResetRepo) Get(_ context.Context, token string) (string, error) {
	if userID, ok := repo.tokens[token]; ok {
		return userID, nil
	}
	return "", apperr.NotFound("Reset token is invalid or expired")
}

func (repo *fakeResetRepo) Delete(_ context.Context, token string) error {
	delete(repo.tokens, token)
	return nil
}

type fakePermissionSource struct {
	roles map[string]string // userID → role
}

func newFakePermissionSource() *fakePermissionSource {
	return &fakePermissionSource{roles: map[string]string{}}
}

func (source *fakePermissionSource) Snapshot(_ context.Context, userID string) (string, map[string][]string, error) {
	role, ok := source.roles[userID]
	if !ok {
		role = string(sec.RoleViewer)
	}
	return role, map[string][]string{
		sec.ResourceWorkflow: {sec.PermissionRead, sec.PermissionExecute},
	}, nil
}

func (source *fakePermissionSource) AssignRole(_ context.Context, userID, role string) error {
	source.roles[userID] = role
	return nil
}

// # Test Fixture

type serviceFixture struct {
	service  *auth.Service
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	refresh  *fakeRefreshRepo
	resets   *fakeResetRepo
	roles    *fakePermissionSource
}

func newServiceFixture(t *testing.T, accessTTL time.Duration) *serviceFixture {
	t.Helper()

	tokens, err := sec.NewTokenService("test-signing-secret", "flowra.app")
	require.NoError(t, err)

	fixture := &serviceFixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		refresh:  newFakeRefreshRepo(),
		resets:   newFakeResetRepo(),
		roles:    newFakePermissionSource(),
	}

	fixture.service = auth.NewService(
		fixture.users,
		fixture.sessions,
		fixture.refresh,
		fixture.resets,
		tokens,
		fixture.roles,
		accessTTL,
		7*24*time.Hour,
	)

	return fixture
}

func (fixture *serviceFixture) register(t *testing.T, username, email, password string) *auth.User {
	t.Helper()

	user, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)

	return user
}

// # Registration

/*
TestService_Register_FirstUserIsPermanentAdmin verifies the bootstrap rule:
the first ever account becomes a permanent administrator with an explicit
admin role record, later accounts do not.
*/
func TestService_Register_FirstUserIsPermanentAdmin(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)

	first := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")
	assert.True(t, first.IsPermanentAdmin)
	assert.Equal(t, string(sec.RoleAdmin), fixture.roles.roles[first.ID])

	second := fixture.register(t, "bob", "bob@example.com", "correct-horse-2")
	assert.False(t, second.IsPermanentAdmin)
	assert.Empty(t, fixture.roles.roles[second.ID])
}

/*
TestService_Register_Conflicts checks username and email uniqueness.
*/
func TestService_Register_Conflicts(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	_, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "correct-horse-2",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.As(err).HTTPStatus)

	_, err = fixture.service.Register(context.Background(), auth.RegisterInput{
		Username: "alice2", Email: "alice@example.com", Password: "correct-horse-2",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.As(err).HTTPStatus)
}

// # Login & Verification

/*
TestService_Login_And_VerifyAccess covers the happy path: login issues both
tokens, and the access token verifies against signature plus ledger.
*/
func TestService_Login_And_VerifyAccess(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)

	claims, err := fixture.service.VerifyAccess(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin) // first user bootstrap
}

/*
TestService_Login_Rejections covers wrong password, unknown account, and
deactivated account.
*/
func TestService_Login_Rejections(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	_, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "wrong-password-1",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	_, err = fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "nobody", Password: "correct-horse-1",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	fixture.users.users[user.ID].IsActive = false
	_, err = fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)
	assert.Equal(t, "Account is inactive", apperr.As(err).Message)
}

/*
TestService_VerifyAccess_AfterLogout proves that a cryptographically valid
token is rejected once its ledger row is gone.
*/
func TestService_VerifyAccess_AfterLogout(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(context.Background(), session.AccessToken))

	_, err = fixture.service.VerifyAccess(context.Background(), session.AccessToken)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	// Logout is idempotent
	assert.NoError(t, fixture.service.Logout(context.Background(), session.AccessToken))
}

/*
TestService_VerifyAccess_ExpiredLedgerRow verifies the eager delete: a ledger
row found expired during verification is removed immediately.
*/
func TestService_VerifyAccess_ExpiredLedgerRow(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	// Backdate the ledger row past its expiry
	fixture.sessions.sessions[session.AccessToken].ExpiresAt =
		auth.FormatExpiry(time.Now().Add(-time.Minute))

	_, err = fixture.service.VerifyAccess(context.Background(), session.AccessToken)
	require.Error(t, err)
	assert.Empty(t, fixture.sessions.sessions, "expired row must be deleted eagerly")
}

/*
TestService_VerifyAccess_UnparsableExpiryKeptInPlace checks that rows with an
unreadable expiry are rejected but never deleted.
*/
func TestService_VerifyAccess_UnparsableExpiryKeptInPlace(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	fixture.sessions.sessions[session.AccessToken].ExpiresAt = "definitely-not-a-date"

	_, err = fixture.service.VerifyAccess(context.Background(), session.AccessToken)
	require.Error(t, err)
	assert.Len(t, fixture.sessions.sessions, 1, "unparsable row must be kept")
}

/*
TestService_VerifyTokenInfo_RefreshWindow checks the should_refresh hint on
both sides of the 30-second boundary.
*/
func TestService_VerifyTokenInfo_RefreshWindow(t *testing.T) {
	t.Run("long_lived_token", func(t *testing.T) {
		fixture := newServiceFixture(t, 30*time.Minute)
		fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		session, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		info, err := fixture.service.VerifyTokenInfo(context.Background(), session.AccessToken)
		require.NoError(t, err)
		assert.False(t, info.ShouldRefresh)
		assert.Greater(t, info.RemainingSeconds, int64(60))
	})

	t.Run("nearly_expired_token", func(t *testing.T) {
		fixture := newServiceFixture(t, 20*time.Second)
		fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		session, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		info, err := fixture.service.VerifyTokenInfo(context.Background(), session.AccessToken)
		require.NoError(t, err)
		assert.True(t, info.ShouldRefresh)
	})
}

/*
TestService_VerifyTokenInfo_Payload pins the wire shape of the token report:
clients key off "valid" and "time_remaining_seconds" by name.
*/
func TestService_VerifyTokenInfo_Payload(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	info, err := fixture.service.VerifyTokenInfo(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.True(t, info.Valid)

	raw, err := json.Marshal(info)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, true, payload["valid"])
	assert.Contains(t, payload, "expires_at")
	assert.Contains(t, payload, "time_remaining_seconds")
	assert.Contains(t, payload, "should_refresh")
	assert.NotContains(t, payload, "remaining_seconds")
}

// # Refresh Lifecycle

/*
TestService_RefreshAccess_NoRotation proves the refresh token survives the
exchange unchanged while a brand new access token is minted.
*/
func TestService_RefreshAccess_NoRotation(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	login, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	refreshed, err := fixture.service.RefreshAccess(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)

	// Both access tokens are now live in the ledger
	_, err = fixture.service.VerifyAccess(context.Background(), login.AccessToken)
	assert.NoError(t, err)
	_, err = fixture.service.VerifyAccess(context.Background(), refreshed.AccessToken)
	assert.NoError(t, err)
}

/*
TestService_RefreshAccess_Rejections covers revocation, row expiry, and
deactivated accounts.
*/
func TestService_RefreshAccess_Rejections(t *testing.T) {
	t.Run("after_revoke_all", func(t *testing.T) {
		fixture := newServiceFixture(t, 30*time.Minute)
		user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		login, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		require.NoError(t, fixture.service.RevokeAllRefresh(context.Background(), user.ID))

		_, err = fixture.service.RefreshAccess(context.Background(), login.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)
	})

	t.Run("expired_row", func(t *testing.T) {
		fixture := newServiceFixture(t, 30*time.Minute)
		fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		login, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		fixture.refresh.tokens[login.RefreshToken].ExpiresAt = time.Now().Add(-time.Hour)

		_, err = fixture.service.RefreshAccess(context.Background(), login.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)
	})

	t.Run("deactivated_user", func(t *testing.T) {
		fixture := newServiceFixture(t, 30*time.Minute)
		user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		login, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		fixture.users.users[user.ID].IsActive = false

		_, err = fixture.service.RefreshAccess(context.Background(), login.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)
	})

	t.Run("access_token_as_refresh", func(t *testing.T) {
		fixture := newServiceFixture(t, 30*time.Minute)
		fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

		login, err := fixture.service.Login(context.Background(), auth.LoginInput{
			Login: "alice", Password: "correct-horse-1",
		})
		require.NoError(t, err)

		_, err = fixture.service.RefreshAccess(context.Background(), login.AccessToken)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)
	})
}

// # Password Recovery

/*
TestService_HardResetPassword_SingleUse covers the full recovery flow and the
single-use guarantee: the second consumption of the same token fails.
*/
func TestService_HardResetPassword_SingleUse(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	token, err := fixture.service.RequestPasswordReset(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, fixture.service.HardResetPassword(context.Background(), token, "brand-new-pass-1"))

	// Old password no longer works, new one does
	_, err = fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.Error(t, err)

	_, err = fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "brand-new-pass-1",
	})
	require.NoError(t, err)

	// Second consumption of the same token is a validation failure, not a
	// missing resource.
	err = fixture.service.HardResetPassword(context.Background(), token, "yet-another-pass-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.As(err).HTTPStatus)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

/*
TestService_RequestPasswordReset_UnknownEmail must not reveal whether the
email exists.
*/
func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)

	token, err := fixture.service.RequestPasswordReset(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Empty(t, token)
}

// # Account Lifecycle

/*
TestService_ChangePassword verifies the current-password gate and the
refresh-token revocation side effect.
*/
func TestService_ChangePassword(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	login, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	err = fixture.service.ChangePassword(context.Background(), user.ID, "wrong-password-1", "new-password-11")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	require.NoError(t, fixture.service.ChangePassword(context.Background(), user.ID, "correct-horse-1", "new-password-11"))

	// Refresh tokens are revoked as a side effect
	_, err = fixture.service.RefreshAccess(context.Background(), login.RefreshToken)
	require.Error(t, err)
}

/*
TestService_EditUsername checks uniqueness and the no-op rename onto the
user's own name.
*/
func TestService_EditUsername(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	alice := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")
	fixture.register(t, "bob", "bob@example.com", "correct-horse-2")

	err := fixture.service.EditUsername(context.Background(), alice.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.As(err).HTTPStatus)

	assert.NoError(t, fixture.service.EditUsername(context.Background(), alice.ID, "alice"))
	assert.NoError(t, fixture.service.EditUsername(context.Background(), alice.ID, "alice-renamed"))
	assert.Equal(t, "alice-renamed", fixture.users.users[alice.ID].Username)
}

/*
TestService_DeleteAccount requires password re-confirmation and removes every
credential with the account.
*/
func TestService_DeleteAccount(t *testing.T) {
	fixture := newServiceFixture(t, 30*time.Minute)
	user := fixture.register(t, "alice", "alice@example.com", "correct-horse-1")

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login: "alice", Password: "correct-horse-1",
	})
	require.NoError(t, err)

	err = fixture.service.DeleteAccount(context.Background(), user.ID, "wrong-password-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.As(err).HTTPStatus)

	require.NoError(t, fixture.service.DeleteAccount(context.Background(), user.ID, "correct-horse-1"))
	assert.Empty(t, fixture.users.users)
	assert.Empty(t, fixture.sessions.sessions)

	_, err = fixture.service.VerifyAccess(context.Background(), session.AccessToken)
	assert.Error(t, err)
}
