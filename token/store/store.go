package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/jrsteele09/solugarde-client/users"
	"github.com/rs/zerolog/log"
)

const durableFileName = "session.json"

var ErrIncompletePair = errors.New("access and refresh tokens must be written together")

// Session is the authenticated state read back from the store
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *users.User // Advisory cached profile, may be nil or stale
	Remembered   bool        // True when the session lives in the durable scope
}

type keys struct {
	access   string
	refresh  string
	user     string
	remember string
}

func newKeys(prefix string) keys {
	return keys{
		access:   prefix + "access_token",
		refresh:  prefix + "refresh_token",
		user:     prefix + "user",
		remember: prefix + "remember",
	}
}

func (k keys) session() []string {
	return []string{k.access, k.refresh, k.user}
}

// Store persists the token pair and cached user in exactly one of two scopes.
// All mutation of the session keys must go through Store so that the single-scope
// invariant holds. Backend failures are logged and swallowed.
type Store struct {
	durable Backend
	session Backend
	keys    keys

	// rememberPref mirrors the durable remember flag so a failing durable backend
	// does not change the scope of the next write.
	rememberPref *bool
	// stale marks a scope whose session keys could not be deleted. read ignores it until a
	// later write or clear succeeds there.
	stale map[Scope]bool
	epoch uint64
	lock  sync.Mutex
}

// New creates a store over the given backends. prefix namespaces every key.
func New(durable, session Backend, prefix string) *Store {
	return &Store{
		durable: durable,
		session: session,
		keys:    newKeys(prefix),
		stale:   make(map[Scope]bool),
	}
}

// NewFromConfig creates a store with a file backed durable scope in the configured data folder
// and an in-memory session scope.
func NewFromConfig(cfg config.StorageConfig) (*Store, error) {
	fb, err := NewFileBackend(filepath.Join(cfg.GetDataFolder(), durableFileName), cfg.GetStoreKey())
	if err != nil {
		return nil, fmt.Errorf("[store.NewFromConfig] %w", err)
	}
	return New(fb, NewMemoryBackend(), cfg.GetStorageKeyPrefix()), nil
}

// Read returns the session held by whichever scope has a cached user entry, durable first.
// A scope holding only one half of the token pair is reported as empty.
func (s *Store) Read() (*Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.read()
}

// Snapshot returns the session together with the epoch it was read at
func (s *Store) Snapshot() (*Session, uint64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	sess, ok := s.read()
	return sess, s.epoch, ok
}

// AccessToken returns the current access token or "" when there is no session
func (s *Store) AccessToken() string {
	if sess, ok := s.Read(); ok {
		return sess.AccessToken
	}
	return ""
}

// RefreshToken returns the current refresh token or "" when there is no session
func (s *Store) RefreshToken() string {
	if sess, ok := s.Read(); ok {
		return sess.RefreshToken
	}
	return ""
}

// Remembered returns the last recorded "remember me" preference
func (s *Store) Remembered() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.remembered()
}

// Epoch changes on every write and clear. Callers that fetch tokens asynchronously capture it
// before the call and apply their result with WriteIfEpoch.
func (s *Store) Epoch() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.epoch
}

// Write stores a new session. A non-nil remembered selects the scope explicitly, otherwise the
// last recorded preference is used. The other scope is emptied.
func (s *Store) Write(accessToken, refreshToken string, user *users.User, remembered *bool) error {
	if accessToken == "" || refreshToken == "" {
		return ErrIncompletePair
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.write(accessToken, refreshToken, user, remembered)
	return nil
}

// WriteIfEpoch writes using the remembered preference only if nothing has written or cleared
// the store since epoch was observed. It reports whether the session was applied.
func (s *Store) WriteIfEpoch(epoch uint64, accessToken, refreshToken string, user *users.User) bool {
	if accessToken == "" || refreshToken == "" {
		return false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.write(accessToken, refreshToken, user, nil)
	return true
}

// UpdateUser replaces the cached user of the current session without touching the tokens.
// It reports false when there is no session to update.
func (s *Store) UpdateUser(user *users.User) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	sess, ok := s.read()
	if !ok {
		return false
	}
	scope := ScopeSession
	if sess.Remembered {
		scope = ScopeDurable
	}
	raw, err := json.Marshal(user)
	if err != nil {
		log.Warn().Err(err).Msg("cached user could not be encoded")
		return false
	}
	if err := s.backend(scope).Set(s.keys.user, string(raw)); err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Str("key", s.keys.user).Msg("token store write failed")
		return false
	}
	return true
}

// Clear removes every key from both scopes, including the remember preference
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.epoch++
	s.rememberPref = nil
	for _, b := range []struct {
		scope   Scope
		backend Backend
	}{{ScopeDurable, s.durable}, {ScopeSession, s.session}} {
		cleared := true
		for _, key := range s.keys.session() {
			cleared = s.delete(b.scope, b.backend, key) && cleared
		}
		s.stale[b.scope] = !cleared
	}
	s.delete(ScopeDurable, s.durable, s.keys.remember)
}

func (s *Store) read() (*Session, bool) {
	for _, scope := range []Scope{ScopeDurable, ScopeSession} {
		if s.stale[scope] {
			continue
		}
		backend := s.backend(scope)
		rawUser, ok := s.get(scope, backend, s.keys.user)
		if !ok {
			continue
		}

		access, _ := s.get(scope, backend, s.keys.access)
		refresh, _ := s.get(scope, backend, s.keys.refresh)
		if access == "" || refresh == "" {
			return nil, false
		}

		sess := &Session{
			AccessToken:  access,
			RefreshToken: refresh,
			Remembered:   scope == ScopeDurable,
		}
		if rawUser == "null" {
			return sess, true
		}
		var user users.User
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			log.Warn().Err(err).Str("scope", scope.String()).Msg("cached user is unreadable")
		} else {
			sess.User = &user
		}
		return sess, true
	}
	return nil, false
}

func (s *Store) write(accessToken, refreshToken string, user *users.User, remembered *bool) {
	s.epoch++

	durable := s.remembered()
	if remembered != nil {
		durable = *remembered
	}
	target, other := ScopeSession, ScopeDurable
	if durable {
		target, other = ScopeDurable, ScopeSession
	}

	rawUser := "null"
	if user != nil {
		if b, err := json.Marshal(user); err == nil {
			rawUser = string(b)
		} else {
			log.Warn().Err(err).Msg("cached user could not be encoded")
		}
	}

	values := []struct{ key, value string }{
		{s.keys.access, accessToken},
		{s.keys.refresh, refreshToken},
		{s.keys.user, rawUser},
	}
	targetBackend := s.backend(target)
	written := true
	for i, v := range values {
		if err := targetBackend.Set(v.key, v.value); err != nil {
			log.Warn().Err(err).Str("scope", target.String()).Str("key", v.key).Msg("token store write failed")
			// Roll back what was written so the pair is never half present
			for _, w := range values[:i] {
				s.delete(target, targetBackend, w.key)
			}
			written = false
			break
		}
	}
	if written {
		s.stale[target] = false
	}

	otherBackend := s.backend(other)
	cleared := true
	for _, key := range s.keys.session() {
		cleared = s.delete(other, otherBackend, key) && cleared
	}
	if !cleared {
		// The previous session is still there and must not shadow this one
		s.stale[other] = true
	}

	s.rememberPref = &durable
	if err := s.durable.Set(s.keys.remember, strconv.FormatBool(durable)); err != nil {
		log.Warn().Err(err).Str("key", s.keys.remember).Msg("token store could not record remember preference")
	}
}

func (s *Store) remembered() bool {
	if s.rememberPref != nil {
		return *s.rememberPref
	}
	raw, ok := s.get(ScopeDurable, s.durable, s.keys.remember)
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	s.rememberPref = &v
	return v
}

func (s *Store) backend(scope Scope) Backend {
	if scope == ScopeDurable {
		return s.durable
	}
	return s.session
}

func (s *Store) get(scope Scope, b Backend, key string) (string, bool) {
	v, ok, err := b.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Str("key", key).Msg("token store read failed")
		return "", false
	}
	return v, ok
}

func (s *Store) delete(scope Scope, b Backend, key string) bool {
	if err := b.Delete(key); err != nil {
		log.Warn().Err(err).Str("scope", scope.String()).Str("key", key).Msg("token store delete failed")
		return false
	}
	return true
}
