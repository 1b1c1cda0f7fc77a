package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/jrsteele09/solugarde-client/internal/metrics"
	"github.com/jrsteele09/solugarde-client/session"
	"github.com/jrsteele09/solugarde-client/token/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var errNotLoggedIn = errors.New("not logged in, run `solugarde login` first")

// app holds what every command needs, built once per invocation
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	session  *session.Controller
}

func (a *app) open() error {
	s, err := store.NewFromConfig(a.cfg)
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	m, err := metrics.New(a.registry)
	if err != nil {
		return err
	}
	client := api.New(a.cfg, api.WithMetrics(m))
	a.session = session.New(a.cfg, s, client, session.WithMetrics(m))
	return nil
}

func (a *app) close() {
	if a.session == nil {
		return
	}
	a.session.Close()
	a.logMetrics()
}

// restore loads the stored session and fails when it does not end authenticated
func (a *app) restore(ctx context.Context) (session.Snapshot, error) {
	if err := a.session.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("could not confirm the session with the API")
	}
	snap := a.session.Snapshot()
	if !snap.IsAuthenticated() {
		return snap, errNotLoggedIn
	}
	return snap, nil
}

func (a *app) client() *api.Client {
	return a.session.Client()
}

func (a *app) logMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		log.Debug().Err(err).Msg("metrics unavailable")
		return
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			ev := log.Debug().Str("metric", fam.GetName()).Float64("value", m.GetCounter().GetValue())
			for _, l := range m.GetLabel() {
				ev = ev.Str(l.GetName(), l.GetValue())
			}
			ev.Msg("client metric")
		}
	}
}

func printf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
