package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/mobolade/tally/config"
	"github.com/mobolade/tally/internal/cache"

	_ "github.com/lib/pq"
)

// Datasource is the Postgres-backed store behind the coordinator. Atomic is
// the write-scope adapter; its mode is fixed here, at construction, and never
// re-read from the environment afterwards.
type Datasource struct {
	Conn   *sql.DB
	Cache  cache.Cache
	Atomic *Adapter
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	conn, err := ConnectDB(configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}

	adapter := NewAdapter(conn, configuration.Atomicity.Mode)
	if err := adapter.Probe(context.Background()); err != nil {
		return nil, err
	}

	readCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	return &Datasource{Conn: conn, Cache: readCache, Atomic: adapter}, nil
}

// ConnectDB opens the pool and pings it, retrying transient failures with
// exponential backoff so a store that is still starting up does not kill the
// process.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	err = backoff.Retry(func() error {
		return db.Ping()
	}, policy)
	if err != nil {
		logrus.Errorf("database connection error: %v", err)
		return nil, err
	}
	return db, nil
}

func (d Datasource) BeginScope(ctx context.Context) (WriteScope, error) {
	return d.Atomic.BeginScope(ctx)
}

func (d Datasource) AtomicityMode() string {
	return d.Atomic.Mode()
}
