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
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/types"
)

type baseRepositoryImpl[T any] struct {
	dc    datacontext.DataContext
	table *datacontext.TableInfo
}

// New returns a repository for T over dc. T must be registered in the
// model of dc.
func New[T any](dc datacontext.DataContext) (Repository[T], error) {
	table, ok := dc.Model().Table((*T)(nil))
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: %T is not registered in this context", types.ErrInvalidOperation, zero)
	}
	return &baseRepositoryImpl[T]{dc: dc, table: table}, nil
}

// NewReadOnly returns the query side of a repository for T.
func NewReadOnly[T any](dc datacontext.DataContext) (ReadOnlyRepository[T], error) {
	return New[T](dc)
}

func (r *baseRepositoryImpl[T]) Query() *Query[T] {
	return newQuery[T](r.dc)
}

func (r *baseRepositoryImpl[T]) Find(filter *types.QueryFilter) *Query[T] {
	return r.Query().Where(filter)
}

func (r *baseRepositoryImpl[T]) Any(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return r.Find(filter).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return r.Find(filter).Count(ctx)
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	entity, err := r.Query().Apply(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?.? = ?", bun.Ident(r.table.Alias), bun.Ident(r.table.PKColumn()), id)
	}).First(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s with id %v", types.ErrNotFound, r.table.Name, id)
	}
	return entity, err
}

func (r *baseRepositoryImpl[T]) All(ctx context.Context) ([]*T, error) {
	return r.Query().List(ctx)
}

// GetPaged returns page (1-based) of the entities matching filter. Invalid
// paging arguments fail before any I/O. Pages past the end are empty.
func (r *baseRepositoryImpl[T]) GetPaged(ctx context.Context, filter *types.QueryFilter, page, pageSize int) (*types.PagedResult[T], error) {
	return r.Page(ctx, types.NewPageRequestWithFilter(page, pageSize, filter))
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, req *types.PageRequest) (*types.PagedResult[T], error) {
	if req == nil {
		return nil, fmt.Errorf("%w: page request is required", types.ErrInvalidArgument)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := r.Find(req.GetFilter())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.NewPagedResult[T](nil, 0, req.GetPage(), req.GetPageSize()), nil
	}

	orders := req.GetOrders()
	if len(orders) == 0 {
		orders = []string{r.table.PKColumn() + " ASC"}
	}
	items, err := query.
		Order(orders...).
		Offset(req.GetOffset()).
		Limit(req.GetPageSize()).
		List(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewPagedResult(items, total, req.GetPage(), req.GetPageSize()), nil
}

func (r *baseRepositoryImpl[T]) Add(ctx context.Context, entity *T) error {
	return r.dc.Add(ctx, entity)
}

func (r *baseRepositoryImpl[T]) AddRange(ctx context.Context, entities ...*T) error {
	for _, entity := range entities {
		if err := r.dc.Add(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Update(entity *T) error {
	return r.dc.Update(entity)
}

func (r *baseRepositoryImpl[T]) Remove(entity *T) error {
	return r.dc.Remove(entity)
}
