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

package uow

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

	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/entity"
)

type User struct {
	bun.BaseModel `bun:"alias:u"`
	entity.DeletableBase[string, string]

	Name string `bun:"name,notnull"`
}

type Post struct {
	bun.BaseModel `bun:"alias:p"`
	entity.Base[string, string]

	Title string `bun:"title,notnull"`
}

type Metric struct {
	bun.BaseModel `bun:"alias:m"`
	entity.Base[string, int64]

	Value float64 `bun:"value,notnull"`
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testOptions() datacontext.Options {
	opts := datacontext.DefaultOptions()
	opts.Clock = func() time.Time { return fixedNow }
	return opts
}

// newBlogRegistry registers a migrated "Blog" context holding users and
// posts.
func newBlogRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(Context[string]("Blog", newTestDB(t), testOptions(), (*User)(nil), (*Post)(nil)))
	require.NoError(t, err)
	require.NoError(t, reg.ApplyMigrations(t.Context()))
	return reg
}

func newBlogScope(t *testing.T) *Scope {
	t.Helper()
	scope := NewScope(newBlogRegistry(t), entity.NewActor("alice"))
	t.Cleanup(func() { _ = scope.Close() })
	return scope
}

func newUser(name string) *User {
	u := &User{Name: name}
	u.ID = "id-" + name
	return u
}
