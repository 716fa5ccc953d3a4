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
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/types"
)

// Query is an immutable, lazily evaluated query over T. Every builder
// method returns a new Query; the receiver is left unchanged. The bun
// query is assembled only when a terminal method runs, so a Query created
// before a transaction starts still executes inside it.
type Query[T any] struct {
	dc         datacontext.DataContext
	unfiltered bool
	mods       []func(*bun.SelectQuery) *bun.SelectQuery
}

func newQuery[T any](dc datacontext.DataContext) *Query[T] {
	return &Query[T]{dc: dc}
}

func (q *Query[T]) with(mod func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	mods := make([]func(*bun.SelectQuery) *bun.SelectQuery, len(q.mods), len(q.mods)+1)
	copy(mods, q.mods)
	return &Query[T]{dc: q.dc, unfiltered: q.unfiltered, mods: append(mods, mod)}
}

// Where narrows the query. A nil filter is ignored.
func (q *Query[T]) Where(filter *types.QueryFilter) *Query[T] {
	if filter == nil || filter.Schema == "" {
		return q
	}
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where(filter.Schema, filter.Args...)
	})
}

// Order sorts by the given expressions, e.g. "name ASC". Expressions are
// rendered into SQL as written and must not come from untrusted input;
// Page validates its orders instead.
func (q *Query[T]) Order(orders ...string) *Query[T] {
	if len(orders) == 0 {
		return q
	}
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Order(orders...)
	})
}

func (q *Query[T]) Limit(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Limit(n) })
}

func (q *Query[T]) Offset(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Offset(n) })
}

// IncludeDeleted drops the soft-delete standing filter.
func (q *Query[T]) IncludeDeleted() *Query[T] {
	mods := make([]func(*bun.SelectQuery) *bun.SelectQuery, len(q.mods))
	copy(mods, q.mods)
	return &Query[T]{dc: q.dc, unfiltered: true, mods: mods}
}

// Apply adds an arbitrary bun modifier, e.g. joins or column lists.
func (q *Query[T]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	if fn == nil {
		return q
	}
	return q.with(fn)
}

func (q *Query[T]) build(model interface{}) *bun.SelectQuery {
	var sq *bun.SelectQuery
	if q.unfiltered {
		sq = q.dc.SelectUnfiltered(model)
	} else {
		sq = q.dc.Select(model)
	}
	for _, mod := range q.mods {
		sq = mod(sq)
	}
	return sq
}

func (q *Query[T]) check(ctx context.Context) error {
	if q.dc.Closed() {
		return fmt.Errorf("%w: unit of work is closed", types.ErrInvalidOperation)
	}
	return types.CheckContext(ctx)
}

// List materializes the query.
func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	if err := q.check(ctx); err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	if err := q.build(&entities).Scan(ctx); err != nil {
		return nil, database.WrapError("select", err)
	}
	return entities, nil
}

// First returns the first row or an error matching types.ErrNotFound.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	if err := q.check(ctx); err != nil {
		return nil, err
	}
	entity := new(T)
	err := q.build(entity).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %T matches the query", types.ErrNotFound, entity)
	}
	if err != nil {
		return nil, database.WrapError("select", err)
	}
	return entity, nil
}

func (q *Query[T]) Count(ctx context.Context) (int, error) {
	if err := q.check(ctx); err != nil {
		return 0, err
	}
	n, err := q.build((*T)(nil)).Count(ctx)
	if err != nil {
		return 0, database.WrapError("count", err)
	}
	return n, nil
}

func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	if err := q.check(ctx); err != nil {
		return false, err
	}
	ok, err := q.build((*T)(nil)).Exists(ctx)
	if err != nil {
		return false, database.WrapError("exists", err)
	}
	return ok, nil
}
