// Package curbside is a reservation submission and synchronization engine:
// validated ride scheduling with timezone-aware lead time, submission held
// behind an authentication gate with automatic resume, and a role-aware
// reservation ledger kept fresh by a change feed with a polling fallback
// for drivers.
package curbside

import (
	"context"
	"log/slog"

	"curbside/internal/clock"
	"curbside/internal/config"
	"curbside/internal/feed"
	"curbside/internal/ledger"
	"curbside/internal/logging"
	"curbside/internal/metrics"
	"curbside/internal/model"
	"curbside/internal/schedule"
	"curbside/internal/session"
	"curbside/internal/store"
	"curbside/internal/submit"
)

// Engine wires the reservation components for one user session. Hosts embed
// it behind their UI layer; everything mutable inside is session-scoped.
type Engine struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       store.Store
	Session     *session.TokenProvider
	Ledger      *ledger.View
	Coordinator *submit.Coordinator

	clock clock.Clock
}

// New assembles an engine from configuration. With no DatabaseURL the store
// is in-memory; with no RedisURL or FeedURL the change feed is the in-process
// broker, which is the right shape for a single client process anyway.
func New(cfg config.Config, fe submit.Frontend) (*Engine, error) {
	logger := logging.NewLogger(cfg.LogLevel)
	metrics.RegisterDefault()
	clk := clock.NewSystem()

	var broker feed.Broker
	if cfg.RedisURL != "" {
		rb, err := feed.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		broker = rb
	} else {
		broker = feed.NewMemoryBroker()
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL, clk, broker)
		if err != nil {
			return nil, err
		}
		st = pg
	} else {
		st = store.NewMemory(clk, broker)
	}

	// A remote push feed takes priority for reads; writes still publish to
	// the local broker so a single process stays coherent without it.
	var sub feed.Subscriber = broker
	if cfg.FeedURL != "" {
		sub = feed.NewWSFeed(cfg.FeedURL, logger)
	}

	sess := session.NewTokenProvider(cfg.AuthSecret)

	view := ledger.NewView(st, sub, sess, logger)
	view.RiderLimit = cfg.RiderListLimit
	view.DriverLimit = cfg.DriverListLimit
	view.PollInterval = cfg.DriverPollInterval

	builder := &schedule.Builder{Clock: clk, MinLeadTime: cfg.MinLeadTime}
	coord := submit.NewCoordinator(st, sess, builder, fe, view, logger)

	return &Engine{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Session:     sess,
		Ledger:      view,
		Coordinator: coord,
		clock:       clk,
	}, nil
}

// Start begins ledger synchronization for the current session.
func (e *Engine) Start(ctx context.Context) {
	e.Ledger.Start(ctx)
}

// Stop tears down the ledger and the coordinator's session listener.
func (e *Engine) Stop() {
	e.Coordinator.Close()
	e.Ledger.Stop()
}

// NewDraft returns a fresh scheduling draft with the form defaults.
func (e *Engine) NewDraft() *model.ReservationDraft {
	return model.NewDraft(e.clock.Now())
}

// SignInWithToken verifies an access token and signs its user in, resuming
// any submission queued behind the auth gate.
func (e *Engine) SignInWithToken(token string) error {
	return e.Session.SetToken(token)
}

// SignOut ends the session, dropping any queued submission.
func (e *Engine) SignOut() {
	e.Session.ClearToken()
}
