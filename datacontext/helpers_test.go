/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package datacontext

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/nerv/entity"
)

type Note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`
	entity.Base[string, string]

	Title string `bun:"title,notnull"`
}

type Account struct {
	bun.BaseModel `bun:"alias:a"`
	entity.DeletableBase[string, string]

	Email string `bun:"email,notnull,unique"`
}

type Invoice struct {
	bun.BaseModel `bun:"alias:i"`
	entity.VersionedBase[string, string]

	Amount int64 `bun:"amount,notnull"`
}

type Tag struct {
	bun.BaseModel `bun:"alias:t"`

	ID    string `bun:"id,pk"`
	Label string `bun:"label"`
}

type UserAccount struct {
	bun.BaseModel `bun:"alias:ua"`

	ID string `bun:"id,pk"`
}

// LegacyRecord is soft-deletable for int user ids only.
type LegacyRecord struct {
	bun.BaseModel `bun:"alias:lr"`
	entity.DeletableBase[string, int]
}

// Ticket has a database-generated key.
type Ticket struct {
	bun.BaseModel `bun:"alias:tk"`
	entity.IntDeletableBase[string]

	Subject string `bun:"subject,notnull"`
}

// Reading is audited with int64 user ids.
type Reading struct {
	bun.BaseModel `bun:"alias:r"`
	entity.Base[string, int64]

	Value float64 `bun:"value,notnull"`
}

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return fixedNow }
	return opts
}

// newMigratedContext builds a data context acting as "alice" over a fresh
// database with every test model migrated.
func newMigratedContext(t *testing.T, opts Options) (DataContext, *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	model, err := BuildModel[string](db, opts, (*Note)(nil), (*Account)(nil), (*Invoice)(nil), (*Tag)(nil))
	require.NoError(t, err)
	dc := New[string](db, model, entity.NewActor("alice"), opts)
	require.NoError(t, dc.ApplyMigrations(t.Context()))
	return dc, db
}
