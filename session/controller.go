package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/internal/metrics"
	"github.com/jrsteele09/solugarde-client/token"
	"github.com/jrsteele09/solugarde-client/token/refresh"
	"github.com/jrsteele09/solugarde-client/token/store"
	"github.com/jrsteele09/solugarde-client/users"
	"github.com/rs/zerolog/log"
)

// Controller owns the authentication state of one client. It restores a stored session,
// logs in and out, refreshes ahead of expiry, and ends the session whenever the API rejects it.
// Every transition into StateUnauthenticated clears the token store.
type Controller struct {
	cfg       config.SessionConfig
	store     *store.Store
	client    *api.Client
	refresher *refresh.Refresher
	metrics   *metrics.Metrics
	now       func() time.Time

	state     State
	user      *users.User
	listeners map[int]Listener
	nextID    int
	lock      sync.Mutex

	loop *refreshLoop
}

type Option func(*Controller)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New wires the store and a refresher into client's request pipeline and registers the
// controller as the pipeline's unauthorized handler.
func New(cfg config.SessionConfig, s *store.Store, client *api.Client, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		store:     s,
		client:    client,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresher = refresh.New(s, client, refresh.WithMetrics(c.metrics))

	client.SetTokenSource(s)
	client.SetRefresher(c.refresher)
	client.OnUnauthorized(c.handleUnauthorized)
	return c
}

// Init restores the stored session. A live access token is trusted immediately and then
// reconciled with /auth/me; an expired one is refreshed. Auth failures end the session,
// other reconciliation errors keep the cached user.
func (c *Controller) Init(ctx context.Context) error {
	c.transition(StateInitializing, nil)

	sess, ok := c.store.Read()
	if !ok {
		c.endSession()
		return nil
	}

	cached := sess.User
	if !token.IsLive(sess.AccessToken) {
		refreshed, err := c.refresher.Refresh(ctx)
		if err != nil {
			log.Info().Err(err).Msg("stored session could not be refreshed")
			c.forceLogout(err)
			return nil
		}
		if refreshed.User != nil {
			c.authenticated(refreshed.User)
			return nil
		}
		cached = nil
	} else if cached != nil {
		c.authenticated(cached)
	}

	user, err := c.client.Me(ctx)
	switch {
	case err == nil:
		c.store.UpdateUser(user)
		c.authenticated(user)
	case errors.IsAuthError(err):
		// Usually already handled when the pipeline reported the failure
		c.handleUnauthorized(err)
	case cached == nil:
		// No principal to show, so the session cannot be restored
		log.Warn().Err(err).Msg("profile unavailable for a session without a cached user")
		c.forceLogout(err)
		return err
	default:
		log.Warn().Err(err).Msg("profile reconciliation failed, keeping cached session")
		c.authenticated(cached)
		return err
	}
	return nil
}

// Login exchanges credentials for a session stored in the durable scope when remembered is
// true. A failed login leaves the current state unchanged.
func (c *Controller) Login(ctx context.Context, email, password string, remembered bool) (*users.User, error) {
	resp, err := c.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.Wrapf(api.ErrIncompleteAuthResponse, "[Controller.Login] no user")
	}
	if err := c.store.Write(resp.AccessToken, resp.RefreshToken, resp.User, &remembered); err != nil {
		return nil, errors.Wrapf(err, "[Controller.Login]")
	}
	c.authenticated(resp.User)
	return resp.User.Clone(), nil
}

// Logout notifies the API when the access token is still live, ignoring failures, and then
// clears the session unconditionally.
func (c *Controller) Logout(ctx context.Context) {
	c.stopRefreshLoop(true)

	if access := c.store.AccessToken(); token.IsLive(access) {
		if err := c.client.Logout(ctx, access); err != nil {
			log.Warn().Err(err).Msg("server logout failed")
		}
	}
	c.endSession()
}

// RefreshUser fetches the current profile and updates the cached copy
func (c *Controller) RefreshUser(ctx context.Context) (*users.User, error) {
	user, err := c.client.Me(ctx)
	if err != nil {
		return nil, err
	}
	c.store.UpdateUser(user)

	c.lock.Lock()
	if c.state == StateAuthenticated {
		c.user = user.Clone()
	}
	c.lock.Unlock()
	c.notify()
	return user.Clone(), nil
}

// Refresh exchanges the refresh token immediately. A failed exchange ends the session unless ctx
// was cancelled first.
func (c *Controller) Refresh(ctx context.Context) error {
	if _, err := c.refresher.Refresh(ctx); err != nil {
		if ctx.Err() == nil {
			c.handleUnauthorized(err)
		}
		return err
	}
	return nil
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{State: c.state, User: c.user.Clone()}
}

// Subscribe registers fn for every state change and returns a function that removes it
func (c *Controller) Subscribe(fn Listener) (unsubscribe func()) {
	c.lock.Lock()
	defer c.lock.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.lock.Lock()
			defer c.lock.Unlock()
			delete(c.listeners, id)
		})
	}
}

// AuthToken returns the stored access token, empty when there is no session
func (c *Controller) AuthToken() string {
	return c.store.AccessToken()
}

// HasValidToken reports whether the stored access token has not expired locally
func (c *Controller) HasValidToken() bool {
	return token.IsLive(c.store.AccessToken())
}

func (c *Controller) Client() *api.Client {
	return c.client
}

// Close stops the background refresh loop. The stored session is kept.
func (c *Controller) Close() {
	c.stopRefreshLoop(true)
}

// handleUnauthorized is called by the request pipeline after a terminal auth failure
func (c *Controller) handleUnauthorized(err error) {
	c.lock.Lock()
	state := c.state
	c.lock.Unlock()
	if state != StateAuthenticated && state != StateInitializing {
		return
	}
	log.Warn().Err(err).Msg("session rejected by the API")
	c.forceLogout(err)
}

func (c *Controller) forceLogout(err error) {
	if errors.IsAuthError(err) {
		c.metrics.ForcedLogout()
	}
	c.stopRefreshLoop(true)
	c.endSession()
}

// endSession clears the store and moves to StateUnauthenticated
func (c *Controller) endSession() {
	c.store.Clear()
	c.transition(StateUnauthenticated, nil)
}

func (c *Controller) authenticated(user *users.User) {
	c.transition(StateAuthenticated, user)
	c.startRefreshLoop()
}

func (c *Controller) transition(state State, user *users.User) {
	c.lock.Lock()
	c.state = state
	c.user = user.Clone()
	c.lock.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.lock.Lock()
	snap := c.snapshot()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.lock.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
