package refresh_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/api/apifake"
	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/internal/utils"
	"github.com/jrsteele09/solugarde-client/token/refresh"
	"github.com/jrsteele09/solugarde-client/token/store"
	"github.com/jrsteele09/solugarde-client/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	fake      *apifake.Server
	user      users.User
	store     *store.Store
	client    *api.Client
	refresher *refresh.Refresher
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	fake := apifake.New(t)
	user := fake.AddUser(users.User{Email: "admin@solugarde.test", Role: users.RoleAdmin, IsActive: true}, "pw")
	s := store.New(store.NewMemoryBackend(), store.NewMemoryBackend(), "solugarde_")
	client := api.New(config.API{}, api.WithBaseURL(fake.URL), api.WithTokenSource(s))
	r := refresh.New(s, client)
	client.SetRefresher(r)
	return &testFixture{fake: fake, user: user, store: s, client: client, refresher: r}
}

func (f *testFixture) login(t *testing.T, remembered bool) *api.AuthResponse {
	t.Helper()
	pair := f.fake.IssueTokens(f.user.ID)
	require.NoError(t, f.store.Write(pair.AccessToken, pair.RefreshToken, pair.User, utils.Ptr(remembered)))
	return pair
}

func waitForRefreshes(t *testing.T, fake *apifake.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return fake.WaitingRefreshes() == n }, 5*time.Second, 5*time.Millisecond)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.refresher.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrNoRefreshToken)
	require.Zero(t, f.fake.CallCount(http.MethodPost, "/auth/refresh"))
}

func TestRefresh_WritesNewPair(t *testing.T) {
	for _, remembered := range []bool{true, false} {
		f := setupTestFixture(t)
		old := f.login(t, remembered)

		sess, err := f.refresher.Refresh(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, old.AccessToken, sess.AccessToken)
		require.Equal(t, remembered, sess.Remembered)

		stored, ok := f.store.Read()
		require.True(t, ok)
		require.Equal(t, sess.AccessToken, stored.AccessToken)
		require.Equal(t, sess.RefreshToken, stored.RefreshToken)
		require.Equal(t, remembered, stored.Remembered)
		require.Equal(t, f.user.ID, stored.User.ID)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	f := setupTestFixture(t)
	pair := f.login(t, true)
	f.fake.RejectRefresh(true)

	_, err := f.refresher.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrRefreshFailed)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	// Clearing is the caller's job
	require.Equal(t, pair.AccessToken, f.store.AccessToken())
}

func TestRefresh_SingleFlightUnderContention(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, true)
	f.fake.ExpireAccessTokens()
	release := f.fake.HoldRefresh()
	defer release()

	const callers = 5
	results := make(chan error, callers)
	for range callers {
		go func() {
			_, err := f.client.Me(context.Background())
			results <- err
		}()
	}

	require.Eventually(t, func() bool {
		return f.fake.StatusCount(http.MethodGet, "/auth/me", http.StatusUnauthorized) == callers
	}, 5*time.Second, 5*time.Millisecond)
	waitForRefreshes(t, f.fake, 1)
	release()

	for range callers {
		require.NoError(t, <-results)
	}
	require.Equal(t, 1, f.fake.CallCount(http.MethodPost, "/auth/refresh"))
	require.Equal(t, 2*callers, f.fake.CallCount(http.MethodGet, "/auth/me"))
	require.Equal(t, callers, f.fake.StatusCount(http.MethodGet, "/auth/me", http.StatusOK))
}

func TestRefreshAccessToken_AlreadyRotated(t *testing.T) {
	f := setupTestFixture(t)
	pair := f.login(t, false)

	token, err := f.refresher.RefreshAccessToken(context.Background(), "some-older-token")
	require.NoError(t, err)
	require.Equal(t, pair.AccessToken, token)
	require.Zero(t, f.fake.CallCount(http.MethodPost, "/auth/refresh"))
}

func TestRefresh_LateResultAfterClear(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, true)
	release := f.fake.HoldRefresh()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.refresher.Refresh(context.Background())
		done <- err
	}()
	waitForRefreshes(t, f.fake, 1)

	f.store.Clear()
	release()

	require.ErrorIs(t, <-done, errors.ErrRefreshFailed)
	_, ok := f.store.Read()
	require.False(t, ok)
}

func TestRefresh_LateResultAfterNewLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, true)
	release := f.fake.HoldRefresh()
	defer release()

	done := make(chan *store.Session, 1)
	go func() {
		sess, _ := f.refresher.Refresh(context.Background())
		done <- sess
	}()
	waitForRefreshes(t, f.fake, 1)

	f.store.Clear()
	fresh := f.login(t, false)
	release()

	sess := <-done
	require.NotNil(t, sess)
	require.Equal(t, fresh.AccessToken, sess.AccessToken)
	require.Equal(t, fresh.AccessToken, f.store.AccessToken())
	require.False(t, f.store.Remembered())
}

func TestRefresh_CancelledCallerDoesNotAbortExchange(t *testing.T) {
	f := setupTestFixture(t)
	pair := f.login(t, true)
	release := f.fake.HoldRefresh()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.refresher.Refresh(ctx)
		done <- err
	}()
	waitForRefreshes(t, f.fake, 1)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	release()
	require.Eventually(t, func() bool {
		return f.store.AccessToken() != pair.AccessToken
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.fake.CallCount(http.MethodPost, "/auth/refresh"))
}
