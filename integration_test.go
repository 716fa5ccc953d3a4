//go:build integration

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

package nerv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
	"github.com/tomoncle/nerv/uow"
)

type Ledger struct {
	bun.BaseModel `bun:"alias:l"`
	entity.VersionedBase[string, string]

	Balance int64 `bun:"balance,notnull"`
}

func TestPostgresEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nerv"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg, err := ParseConfig([]byte(fmt.Sprintf(`
contexts:
  bank:
    connection:
      type: postgres
      driver: pgx
      dsn: %q
    options:
      enable_change_log: true
    migrate_on_startup: true
`, connString)))
	require.NoError(t, err)

	n, err := Open(ctx, cfg, map[string]Binding{
		"bank": Models[string]((*Ledger)(nil), (*Post)(nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	scope := n.NewScope(entity.NewActor("teller"))
	defer scope.Close()
	u, err := scope.GetUnitOfWork("bank")
	require.NoError(t, err)
	ledgers, err := uow.Repository[Ledger](u)
	require.NoError(t, err)

	l := &Ledger{Balance: 100}
	l.ID = "acc-1"
	require.NoError(t, ledgers.Add(ctx, l))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.RowVersion)

	stale, err := ledgers.Get(ctx, "acc-1")
	require.NoError(t, err)

	l.Balance = 150
	require.NoError(t, ledgers.Update(l))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.RowVersion)

	stale.Balance = 1
	require.NoError(t, ledgers.Update(stale))
	_, err = u.SaveChanges(ctx)
	assert.ErrorIs(t, err, types.ErrConcurrencyConflict)
	u.DataContext().DiscardChanges()

	require.NoError(t, u.BeginTransaction(ctx))
	p := &Post{Title: "draft"}
	p.ID = "post-1"
	posts, err := uow.Repository[Post](u)
	require.NoError(t, err)
	require.NoError(t, posts.Add(ctx, p))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, u.RollbackTransaction(ctx))

	_, err = posts.Get(ctx, "post-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	status := n.Health(ctx)["bank"]
	assert.True(t, status.Healthy)
}
