package session

import (
	"context"

	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/token"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = controllerTokenSource{}

type controllerTokenSource struct {
	c *Controller
}

// TokenSource exposes the live session as an oauth2.TokenSource, so an *http.Client built with
// oauth2.NewClient sends the current access token. Tokens close to expiry are refreshed first
// and a failed refresh ends the session.
func (c *Controller) TokenSource() oauth2.TokenSource {
	return controllerTokenSource{c: c}
}

func (ts controllerTokenSource) Token() (*oauth2.Token, error) {
	access := ts.c.store.AccessToken()
	if access == "" {
		return nil, errors.ErrNotAuthenticated
	}

	if ts.c.remaining(access) < ts.c.cfg.GetRefreshThreshold() {
		sess, err := ts.c.refresher.Refresh(context.Background())
		if err != nil {
			ts.c.handleUnauthorized(err)
			return nil, err
		}
		access = sess.AccessToken
	}

	exp, err := token.Expiry(access)
	if err != nil {
		return nil, errors.Wrapf(err, "[TokenSource.Token]")
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      exp,
	}, nil
}
