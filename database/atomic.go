/*
Copyright 2025 Tally Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mobolade/tally/config"
	"github.com/mobolade/tally/internal/apierror"
)

// executor is the subset of database/sql shared by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WriteScope groups the writes of one coordinator operation. Under strict
// atomicity the scope is a database transaction: Abort discards every write
// in it. Under best-effort atomicity Commit and Abort are no-ops and writes
// issued before a failure remain durably visible.
type WriteScope interface {
	Commit() error
	Abort() error

	exec() executor
	rowLock() string
}

// Adapter selects the write-scope strategy once, at construction, from the
// injected configuration value.
type Adapter struct {
	db   *sql.DB
	mode string
}

func NewAdapter(db *sql.DB, mode string) *Adapter {
	return &Adapter{db: db, mode: mode}
}

func (a *Adapter) Mode() string {
	return a.mode
}

// Probe verifies the store can actually open a transaction. A strict
// configuration on a store without that capability refuses to start instead
// of silently downgrading.
func (a *Adapter) Probe(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		if a.mode == config.AtomicityStrict {
			return fmt.Errorf("strict atomicity configured but the store cannot open a transaction: %w", err)
		}
		logrus.Warnf("store does not support transactions: %v", err)
	} else {
		_ = tx.Rollback()
	}

	if a.mode == config.AtomicityBestEffort {
		logrus.Warn("best_effort atomicity selected: writes are sequential and non-atomic, unsafe for production")
	}
	return nil
}

func (a *Adapter) BeginScope(ctx context.Context) (WriteScope, error) {
	if a.mode == config.AtomicityBestEffort {
		return &sequentialScope{db: a.db}, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin write scope", err)
	}
	return &strictScope{tx: tx}, nil
}

// strictScope wraps one *sql.Tx; every write in the scope commits or aborts
// as a unit.
type strictScope struct {
	tx *sql.Tx
}

func (s *strictScope) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit write scope", err)
	}
	return nil
}

func (s *strictScope) Abort() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *strictScope) exec() executor { return s.tx }

// Row locks serialize concurrent movements on the same account for the
// lifetime of the scope.
func (s *strictScope) rowLock() string { return " FOR UPDATE" }

// sequentialScope issues writes straight against the pool. Abort cannot take
// anything back; it only logs what it had to leave behind.
type sequentialScope struct {
	db *sql.DB
}

func (s *sequentialScope) Commit() error { return nil }

func (s *sequentialScope) Abort() error {
	logrus.Warn("aborting best-effort write scope: earlier writes in the scope remain visible")
	return nil
}

func (s *sequentialScope) exec() executor { return s.db }

func (s *sequentialScope) rowLock() string { return "" }
