package refresh

import (
	"context"
	"fmt"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/internal/metrics"
	"github.com/jrsteele09/solugarde-client/token/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Exchanger trades a refresh token for a new token pair
type Exchanger interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
}

var _ api.Refresher = (*Refresher)(nil)

// Refresher exchanges the stored refresh token for a new pair. Concurrent callers share a
// single exchange per refresh token.
type Refresher struct {
	store     *store.Store
	exchanger Exchanger
	metrics   *metrics.Metrics
	group     singleflight.Group
}

type Option func(*Refresher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refresher) {
		r.metrics = m
	}
}

func New(s *store.Store, exchanger Exchanger, opts ...Option) *Refresher {
	r := &Refresher{
		store:     s,
		exchanger: exchanger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh exchanges the stored refresh token and persists the new pair with the current
// remember preference. A failure is terminal for the session; callers are expected to clear it.
func (r *Refresher) Refresh(ctx context.Context) (*store.Session, error) {
	return r.refresh(ctx, "")
}

// RefreshAccessToken is used by the request pipeline after a 401. When the stored access token
// already differs from the rejected one another caller has refreshed and no exchange is made.
func (r *Refresher) RefreshAccessToken(ctx context.Context, rejected string) (string, error) {
	sess, err := r.refresh(ctx, rejected)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (r *Refresher) refresh(ctx context.Context, rejected string) (*store.Session, error) {
	sess, ok := r.store.Read()
	if !ok || sess.RefreshToken == "" {
		r.metrics.Refresh(metrics.OutcomeSkipped)
		return nil, errors.ErrNoRefreshToken
	}
	if rejected != "" && sess.AccessToken != rejected {
		return sess, nil
	}

	// The exchange outlives a cancelled caller so the other callers sharing it still get a result
	flight := r.group.DoChan(sess.RefreshToken, func() (any, error) {
		return r.exchange(context.WithoutCancel(ctx), sess.RefreshToken)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*store.Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*store.Session, error) {
	current, epoch, ok := r.store.Snapshot()
	if !ok {
		r.metrics.Refresh(metrics.OutcomeDiscarded)
		return nil, fmt.Errorf("[Refresher.Refresh] session cleared before exchange: %w", errors.ErrRefreshFailed)
	}
	if current.RefreshToken != refreshToken {
		// Rotated by an exchange that finished between the caller's read and this flight
		return current, nil
	}

	resp, err := r.exchanger.RefreshTokens(ctx, refreshToken)
	if err != nil {
		r.metrics.Refresh(metrics.OutcomeFailure)
		log.Warn().Err(err).Msg("token refresh rejected")
		return nil, fmt.Errorf("[Refresher.Refresh] %w: %w", errors.ErrRefreshFailed, err)
	}

	user := resp.User
	if user == nil {
		user = current.User
	}
	if !r.store.WriteIfEpoch(epoch, resp.AccessToken, resp.RefreshToken, user) {
		return r.superseded()
	}

	r.metrics.Refresh(metrics.OutcomeSuccess)
	return &store.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         user,
		Remembered:   current.Remembered,
	}, nil
}

// superseded handles an exchange that finished after the store was cleared or rewritten.
// The result is dropped. If a newer session exists it is returned, otherwise the refresh fails.
func (r *Refresher) superseded() (*store.Session, error) {
	r.metrics.Refresh(metrics.OutcomeDiscarded)
	if latest, ok := r.store.Read(); ok {
		log.Debug().Msg("refresh result discarded, session replaced meanwhile")
		return latest, nil
	}
	log.Debug().Msg("refresh result discarded, session cleared meanwhile")
	return nil, fmt.Errorf("[Refresher.Refresh] session cleared during exchange: %w", errors.ErrRefreshFailed)
}
