package session

import (
	"context"
	"time"

	"github.com/jrsteele09/solugarde-client/token"
	"github.com/rs/zerolog/log"
)

type refreshLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *refreshLoop) stop(wait bool) {
	l.cancel()
	if wait {
		<-l.done
	}
}

// RefreshLoopRunning reports whether the proactive refresh loop is active
func (c *Controller) RefreshLoopRunning() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.loop != nil
}

func (c *Controller) startRefreshLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &refreshLoop{cancel: cancel, done: make(chan struct{})}

	c.lock.Lock()
	previous := c.loop
	c.loop = loop
	c.lock.Unlock()

	if previous != nil {
		previous.stop(true)
	}
	go c.runRefreshLoop(ctx, loop)
}

func (c *Controller) stopRefreshLoop(wait bool) {
	c.lock.Lock()
	loop := c.loop
	c.loop = nil
	c.lock.Unlock()

	if loop != nil {
		loop.stop(wait)
	}
}

func (c *Controller) runRefreshLoop(ctx context.Context, loop *refreshLoop) {
	defer close(loop.done)

	ticker := time.NewTicker(c.cfg.GetRefreshCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := c.refreshIfExpiring(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		// A newer loop owns the session now
		c.lock.Lock()
		if c.loop != loop {
			c.lock.Unlock()
			return
		}
		c.loop = nil
		c.lock.Unlock()

		log.Warn().Err(err).Msg("proactive refresh failed, ending session")
		c.metrics.ForcedLogout()
		c.endSession()
		return
	}
}

func (c *Controller) refreshIfExpiring(ctx context.Context) error {
	if c.remaining(c.store.AccessToken()) >= c.cfg.GetRefreshThreshold() {
		return nil
	}
	log.Debug().Msg("access token close to expiry, refreshing")
	_, err := c.refresher.Refresh(ctx)
	return err
}

// remaining is zero for tokens whose expiry cannot be read
func (c *Controller) remaining(accessToken string) time.Duration {
	exp, err := token.Expiry(accessToken)
	if err != nil {
		return 0
	}
	return exp.Sub(c.now())
}
