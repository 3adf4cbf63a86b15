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

package tally

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mobolade/tally/config"
	"github.com/mobolade/tally/database"
	redis_db "github.com/mobolade/tally/internal/redis-db"
)

// Tally is the ledger transaction coordinator. It owns the sequence and
// ordering of every write touching accounts, transactions and ledger
// entries; nothing else mutates balances or appends entries.
type Tally struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewTally initializes the coordinator over the provided datasource. The
// atomicity strategy was already fixed inside the datasource at
// construction; the coordinator never reads it from the environment.
func NewTally(db database.IDataSource) (*Tally, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	return &Tally{datasource: db, redis: redisClient.Client()}, nil
}

// NewTallyWithRedis wires an explicit redis client, used by tests to point
// the account locks at an embedded server.
func NewTallyWithRedis(db database.IDataSource, redisClient redis.UniversalClient) *Tally {
	return &Tally{datasource: db, redis: redisClient}
}

// AtomicityMode exposes the write-scope strategy the datasource was built
// with, for logging and operational checks.
func (t *Tally) AtomicityMode() string {
	return t.datasource.AtomicityMode()
}
