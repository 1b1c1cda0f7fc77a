// Package apifake runs an in-memory Solugarde API over httptest for tests.
// It issues real JWTs, rotates refresh tokens, records every call and can be scripted to
// reject access tokens, refresh exchanges or health checks.
package apifake

import (
	"context"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/token"
	"github.com/jrsteele09/solugarde-client/token/tokentest"
	"github.com/jrsteele09/solugarde-client/users"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	HealthBody = "Hello World!"
)

// Call is one request received by the fake
type Call struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	RequestID     string
	Status        int
}

type account struct {
	user     users.User
	password string
}

type Server struct {
	*httptest.Server

	accessTTL  time.Duration
	refreshTTL time.Duration

	accounts      map[string]*account // by email
	byID          map[string]*account
	access        map[string]string // access token -> user id
	refresh       map[string]string // refresh token -> user id
	garderies     []api.Garderie
	jobOffers     []api.JobOffer
	conversations []api.Conversation
	messages      map[string][]api.Message // by conversation id

	calls          []Call
	rejectRefresh  bool
	rejectAll      bool
	omitUser       bool
	healthFailures int
	refreshGate    chan struct{}
	refreshWaiting int

	sockets    map[*websocket.Conn]string // conn -> user id
	authFrames []AuthFrame

	lock sync.RWMutex
}

type Option func(*Server)

func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// New starts a fake API server that is closed when the test ends
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		accounts:   make(map[string]*account),
		byID:       make(map[string]*account),
		access:     make(map[string]string),
		refresh:    make(map[string]string),
		messages:   make(map[string][]api.Message),
		sockets:    make(map[*websocket.Conn]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.closeSockets(websocket.StatusGoingAway, "server closing")
		s.Server.Close()
	})
	return s
}

// AddUser registers an account that can log in with password. An empty ID is generated.
func (s *Server) AddUser(u users.User, password string) users.User {
	s.lock.Lock()
	defer s.lock.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	acct := &account{user: u, password: password}
	s.accounts[u.Email] = acct
	s.byID[u.ID] = acct
	return u
}

// SetAccessTTL changes the lifetime of access tokens issued from now on
func (s *Server) SetAccessTTL(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessTTL = d
}

// IssueTokens creates a valid token pair for a registered user without a login call
func (s *Server) IssueTokens(userID string) *api.AuthResponse {
	s.lock.Lock()
	defer s.lock.Unlock()
	acct, ok := s.byID[userID]
	if !ok {
		return nil
	}
	return s.issue(acct)
}

func (s *Server) issue(acct *account) *api.AuthResponse {
	now := time.Now()
	access := tokentest.Mint(acct.user.ID, string(acct.user.Role), now.Add(s.accessTTL))
	refresh := tokentest.Mint(acct.user.ID, string(acct.user.Role), now.Add(s.refreshTTL))
	s.access[access] = acct.user.ID
	s.refresh[refresh] = acct.user.ID
	if s.omitUser {
		return &api.AuthResponse{AccessToken: access, RefreshToken: refresh}
	}
	user := acct.user
	return &api.AuthResponse{AccessToken: access, RefreshToken: refresh, User: &user}
}

// ExpireAccessTokens makes the server reject every access token issued so far
func (s *Server) ExpireAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.access = make(map[string]string)
}

// RejectRefresh makes /auth/refresh answer 401
func (s *Server) RejectRefresh(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectRefresh = reject
}

// RejectAll makes every authenticated endpoint answer 401, even for freshly refreshed tokens
func (s *Server) RejectAll(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectAll = reject
}

// OmitAuthUser makes login and refresh responses carry only the token pair
func (s *Server) OmitAuthUser(omit bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.omitUser = omit
}

// FailHealth makes the next n health checks answer 503
func (s *Server) FailHealth(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.healthFailures = n
}

// HoldRefresh blocks /auth/refresh until the returned release function is called
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.lock.Lock()
	s.refreshGate = gate
	s.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lock.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.lock.Unlock()
			close(gate)
		})
	}
}

// WaitingRefreshes returns the number of refresh requests blocked by HoldRefresh
func (s *Server) WaitingRefreshes() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.refreshWaiting
}

func (s *Server) AddGarderie(g api.Garderie) api.Garderie {
	s.lock.Lock()
	defer s.lock.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	s.garderies = append(s.garderies, g)
	return g
}

func (s *Server) AddJobOffer(o api.JobOffer) api.JobOffer {
	s.lock.Lock()
	defer s.lock.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.jobOffers = append(s.jobOffers, o)
	return o
}

func (s *Server) AddConversation(c api.Conversation) api.Conversation {
	s.lock.Lock()
	defer s.lock.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.conversations = append(s.conversations, c)
	return c
}

// AddMessage stores a message from senderID without broadcasting it
func (s *Server) AddMessage(conversationID, senderID, body string) api.Message {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.appendMessage(conversationID, senderID, body)
}

// Messages returns a copy of the stored messages of a conversation
func (s *Server) Messages(conversationID string) []api.Message {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]api.Message(nil), s.messages[conversationID]...)
}

// Calls returns every request received so far
func (s *Server) Calls() []Call {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts the requests received for method and path
func (s *Server) CallCount(method, path string) int {
	return s.count(func(c Call) bool { return c.Method == method && c.Path == path })
}

// StatusCount counts the requests for method and path that were answered with status
func (s *Server) StatusCount(method, path string, status int) int {
	return s.count(func(c Call) bool { return c.Method == method && c.Path == path && c.Status == status })
}

func (s *Server) count(match func(Call) bool) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	n := 0
	for _, c := range s.calls {
		if match(c) {
			n++
		}
	}
	return n
}

// AccessTokenValid reports whether the server would accept the access token
func (s *Server) AccessTokenValid(accessToken string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.userForAccess(accessToken)
	return ok
}

func (s *Server) userForAccess(accessToken string) (*account, bool) {
	if s.rejectAll {
		return nil, false
	}
	id, ok := s.access[accessToken]
	if !ok || !token.IsLive(accessToken) {
		return nil, false
	}
	acct, ok := s.byID[id]
	return acct, ok
}

func (s *Server) revokeUser(userID string) {
	for t, id := range s.access {
		if id == userID {
			delete(s.access, t)
		}
	}
	for t, id := range s.refresh {
		if id == userID {
			delete(s.refresh, t)
		}
	}
}

type ctxKey struct{}

func accountFrom(ctx context.Context) *account {
	acct, _ := ctx.Value(ctxKey{}).(*account)
	return acct
}
