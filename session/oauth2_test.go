package session_test

import (
	"context"
	"net/http"

	"github.com/jrsteele09/solugarde-client/session"
	"golang.org/x/oauth2"
)

func oauth2Client(c *session.Controller) *http.Client {
	return oauth2.NewClient(context.Background(), c.TokenSource())
}
