package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/solugarde-client/internal/utils"
	"github.com/jrsteele09/solugarde-client/token/store"
	"github.com/jrsteele09/solugarde-client/users"
	"github.com/stretchr/testify/require"
)

const prefix = "solugarde_"

var testUser = &users.User{ID: "u1", Email: "admin@example.com", Role: users.RoleAdmin, IsActive: true}

// flakyBackend fails Set for a chosen key, or every call
type flakyBackend struct {
	*store.MemoryBackend
	failKey    string
	failAll    bool
	failDelete bool
}

func (f *flakyBackend) Delete(key string) error {
	if f.failAll || f.failDelete {
		return errors.New("storage locked")
	}
	return f.MemoryBackend.Delete(key)
}

func (f *flakyBackend) Set(key, value string) error {
	if f.failAll || key == f.failKey {
		return errors.New("quota exceeded")
	}
	return f.MemoryBackend.Set(key, value)
}

func (f *flakyBackend) Get(key string) (string, bool, error) {
	if f.failAll {
		return "", false, errors.New("storage disabled")
	}
	return f.MemoryBackend.Get(key)
}

type testFixture struct {
	durable *store.MemoryBackend
	session *store.MemoryBackend
	store   *store.Store
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	durable := store.NewMemoryBackend()
	session := store.NewMemoryBackend()
	return &testFixture{
		durable: durable,
		session: session,
		store:   store.New(durable, session, prefix),
	}
}

func (f *testFixture) requireScopeEmpty(t *testing.T, b *store.MemoryBackend) {
	t.Helper()
	for _, key := range []string{prefix + "access_token", prefix + "refresh_token", prefix + "user"} {
		_, ok, err := b.Get(key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
}

func TestStore_WriteRead(t *testing.T) {
	f := setupTestFixture(t)

	_, ok := f.store.Read()
	require.False(t, ok)

	require.NoError(t, f.store.Write("access-1", "refresh-1", testUser, utils.Ptr(true)))

	sess, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, "access-1", sess.AccessToken)
	require.Equal(t, "refresh-1", sess.RefreshToken)
	require.True(t, sess.Remembered)
	require.Equal(t, "u1", sess.User.ID)
	require.Equal(t, users.RoleAdmin, sess.User.Role)

	v, ok, _ := f.durable.Get(prefix + "access_token")
	require.True(t, ok)
	require.Equal(t, "access-1", v)
}

func TestStore_StorageExclusivity(t *testing.T) {
	t.Run("durable then session", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(true)))
		require.NoError(t, f.store.Write("a2", "r2", testUser, utils.Ptr(false)))

		f.requireScopeEmpty(t, f.durable)
		sess, ok := f.store.Read()
		require.True(t, ok)
		require.False(t, sess.Remembered)
		require.Equal(t, "a2", sess.AccessToken)
	})

	t.Run("session then durable", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(false)))
		require.NoError(t, f.store.Write("a2", "r2", testUser, utils.Ptr(true)))

		f.requireScopeEmpty(t, f.session)
		sess, ok := f.store.Read()
		require.True(t, ok)
		require.True(t, sess.Remembered)
	})
}

func TestStore_RememberedPreference(t *testing.T) {
	f := setupTestFixture(t)
	require.False(t, f.store.Remembered())

	require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(true)))
	require.True(t, f.store.Remembered())

	// No explicit flag falls back to the last choice
	require.NoError(t, f.store.Write("a2", "r2", testUser, nil))
	sess, _ := f.store.Read()
	require.True(t, sess.Remembered)
	f.requireScopeEmpty(t, f.session)

	// A fresh store over the same durable backend picks the preference up again
	reloaded := store.New(f.durable, store.NewMemoryBackend(), prefix)
	require.True(t, reloaded.Remembered())
}

func TestStore_DefaultsToSessionScope(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write("a1", "r1", testUser, nil))
	sess, ok := f.store.Read()
	require.True(t, ok)
	require.False(t, sess.Remembered)
	f.requireScopeEmpty(t, f.durable)
}

func TestStore_DurableTakesPrecedence(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.session.Set(prefix+"access_token", "session-access"))
	require.NoError(t, f.session.Set(prefix+"refresh_token", "session-refresh"))
	require.NoError(t, f.session.Set(prefix+"user", `{"id":"s"}`))
	require.NoError(t, f.durable.Set(prefix+"access_token", "durable-access"))
	require.NoError(t, f.durable.Set(prefix+"refresh_token", "durable-refresh"))
	require.NoError(t, f.durable.Set(prefix+"user", `{"id":"d"}`))

	sess, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, "durable-access", sess.AccessToken)
	require.Equal(t, "d", sess.User.ID)
}

func TestStore_AtomicPair(t *testing.T) {
	t.Run("refuses half a pair", func(t *testing.T) {
		f := setupTestFixture(t)
		require.ErrorIs(t, f.store.Write("a1", "", testUser, nil), store.ErrIncompletePair)
		require.ErrorIs(t, f.store.Write("", "r1", testUser, nil), store.ErrIncompletePair)
		_, ok := f.store.Read()
		require.False(t, ok)
	})

	t.Run("failed write rolls back", func(t *testing.T) {
		durable := &flakyBackend{MemoryBackend: store.NewMemoryBackend(), failKey: prefix + "refresh_token"}
		s := store.New(durable, store.NewMemoryBackend(), prefix)

		require.NotPanics(t, func() {
			require.NoError(t, s.Write("a1", "r1", testUser, utils.Ptr(true)))
		})
		_, ok := s.Read()
		require.False(t, ok)
		_, ok, _ = durable.MemoryBackend.Get(prefix + "access_token")
		require.False(t, ok)
	})

	t.Run("half a pair on disk reads as empty", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.durable.Set(prefix+"access_token", "a1"))
		require.NoError(t, f.durable.Set(prefix+"user", `{"id":"u1"}`))
		_, ok := f.store.Read()
		require.False(t, ok)
	})

	t.Run("unavailable storage is swallowed", func(t *testing.T) {
		broken := &flakyBackend{MemoryBackend: store.NewMemoryBackend(), failAll: true}
		s := store.New(broken, broken, prefix)
		require.NotPanics(t, func() {
			require.NoError(t, s.Write("a1", "r1", testUser, utils.Ptr(true)))
			s.Clear()
		})
		_, ok := s.Read()
		require.False(t, ok)
	})
}

func TestStore_UndeletableScope(t *testing.T) {
	durable := &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
	s := store.New(durable, store.NewMemoryBackend(), prefix)

	t.Run("previous session does not shadow a new one", func(t *testing.T) {
		require.NoError(t, s.Write("a1", "r1", testUser, utils.Ptr(true)))
		durable.failDelete = true
		require.NoError(t, s.Write("a2", "r2", testUser, utils.Ptr(false)))

		sess, ok := s.Read()
		require.True(t, ok)
		require.Equal(t, "a2", sess.AccessToken)
		require.Equal(t, "r2", sess.RefreshToken)
		require.False(t, sess.Remembered)
	})

	t.Run("a later write to the scope makes it current again", func(t *testing.T) {
		durable.failDelete = false
		require.NoError(t, s.Write("a3", "r3", testUser, utils.Ptr(true)))

		sess, ok := s.Read()
		require.True(t, ok)
		require.Equal(t, "a3", sess.AccessToken)
		require.True(t, sess.Remembered)
	})

	t.Run("clear hides what it could not delete", func(t *testing.T) {
		durable.failDelete = true
		s.Clear()
		_, ok := s.Read()
		require.False(t, ok)
		require.Empty(t, s.AccessToken())
	})
}

func TestStore_Clear(t *testing.T) {
	for _, remembered := range []bool{true, false} {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(remembered)))

		f.store.Clear()

		_, ok := f.store.Read()
		require.False(t, ok)
		f.requireScopeEmpty(t, f.durable)
		f.requireScopeEmpty(t, f.session)
		require.Equal(t, 0, f.durable.Len())
		require.False(t, f.store.Remembered())
	}
}

func TestStore_WriteIfEpoch(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(true)))

	epoch := f.store.Epoch()
	require.True(t, f.store.WriteIfEpoch(epoch, "a2", "r2", testUser))
	sess, _ := f.store.Read()
	require.Equal(t, "a2", sess.AccessToken)
	require.True(t, sess.Remembered)

	stale := f.store.Epoch()
	f.store.Clear()
	require.False(t, f.store.WriteIfEpoch(stale, "a3", "r3", testUser))
	_, ok := f.store.Read()
	require.False(t, ok)
}

func TestStore_NilUser(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Write("a1", "r1", nil, nil))
	sess, ok := f.store.Read()
	require.True(t, ok)
	require.Nil(t, sess.User)
}

func TestStore_FileBackedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	fb, err := store.NewFileBackend(path, "")
	require.NoError(t, err)
	s := store.New(fb, store.NewMemoryBackend(), prefix)
	require.NoError(t, s.Write("a1", "r1", testUser, utils.Ptr(true)))

	reopened, err := store.NewFileBackend(path, "")
	require.NoError(t, err)
	sess, ok := store.New(reopened, store.NewMemoryBackend(), prefix).Read()
	require.True(t, ok)
	require.Equal(t, "a1", sess.AccessToken)
	require.Equal(t, "u1", sess.User.ID)
}

func TestStore_UpdateUser(t *testing.T) {
	f := setupTestFixture(t)
	require.False(t, f.store.UpdateUser(testUser))

	require.NoError(t, f.store.Write("a1", "r1", testUser, utils.Ptr(true)))
	epoch := f.store.Epoch()

	renamed := testUser.Clone()
	renamed.FirstName = "Grace"
	require.True(t, f.store.UpdateUser(renamed))

	sess, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, "Grace", sess.User.FirstName)
	require.Equal(t, "a1", sess.AccessToken)
	require.Equal(t, epoch, f.store.Epoch())
	f.requireScopeEmpty(t, f.session)
}
