package main

import (
	"sync"

	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/observability"
	"github.com/alfredjeanlab/microblog/internal/source"
	"github.com/alfredjeanlab/microblog/internal/source/natsbus"
	"github.com/alfredjeanlab/microblog/internal/source/twitter"
	"github.com/alfredjeanlab/microblog/internal/store"
	"github.com/alfredjeanlab/microblog/internal/store/postgres"
	"github.com/alfredjeanlab/microblog/internal/store/sqlite"
)

// metrics registers the collectors on the default registry once per process.
var metrics = sync.OnceValue(observability.NewMetrics)

// sources lists every source variant the CLI can capture from.
var sources = source.NewRegistry(
	twitter.Variant{},
	natsbus.Variant{},
)

// openStore opens whichever backend the configuration names.
func (a *app) openStore() (store.Store, error) {
	databaseURL, sqlitePath, err := a.cfg.StoreLocation()
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		return postgres.New(databaseURL)
	}
	return sqlite.Open(sqlite.Config{Path: sqlitePath, Logger: a.logger})
}

// newPublisher connects to the event bus when MB_NATS_URL is set. Events
// are best effort: an unreachable bus logs a warning and disables them.
func (a *app) newPublisher() events.Publisher {
	if a.cfg.NATSURL == "" {
		a.logger.Debug("events disabled (MB_NATS_URL not set)")
		return events.NoopPublisher{}
	}
	pub, err := events.NewNATSPublisher(a.cfg.NATSURL)
	if err != nil {
		a.logger.Warn("events disabled", "nats_url", a.cfg.NATSURL, "err", err)
		return events.NoopPublisher{}
	}
	a.logger.Info("events enabled", "nats_url", a.cfg.NATSURL)
	return pub
}
