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

package repository

import (
	"database/sql"
	"fmt"
	"testing"

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
	Age  int    `bun:"age,notnull"`
}

type Product struct {
	bun.BaseModel `bun:"table:catalog_products,alias:p"`
	entity.Base[string, string]

	SKU string `bun:"sku,notnull"`
}

type Unregistered struct {
	ID string `bun:"id,pk"`
}

func newUser(name string, age int) *User {
	u := &User{Name: name, Age: age}
	u.ID = "id-" + name
	return u
}

func newTestContext(t *testing.T) datacontext.DataContext {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	opts := datacontext.DefaultOptions()
	model, err := datacontext.BuildModel[string](db, opts, (*User)(nil), (*Product)(nil))
	require.NoError(t, err)
	dc := datacontext.New[string](db, model, entity.NewActor("tester"), opts)
	require.NoError(t, dc.ApplyMigrations(t.Context()))
	return dc
}

// seedUsers saves n users named user-01, user-02, ... aged 1..n.
func seedUsers(t *testing.T, dc datacontext.DataContext, n int) []*User {
	t.Helper()
	users := make([]*User, 0, n)
	for i := 1; i <= n; i++ {
		u := newUser(fmt.Sprintf("user-%02d", i), i)
		require.NoError(t, dc.Add(t.Context(), u))
		users = append(users, u)
	}
	_, err := dc.SaveChanges(t.Context())
	require.NoError(t, err)
	return users
}
