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

	"github.com/tomoncle/nerv/types"
)

// ReadOnlyRepository exposes the query side of a repository.
type ReadOnlyRepository[T any] interface {
	// Query returns a lazy query over every visible T.
	Query() *Query[T]
	Any(ctx context.Context, filter *types.QueryFilter) (bool, error)
	// Count counts the visible T matching filter; a nil filter counts all.
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// Repository is the per-type facade over a data context. Add, Update and
// Remove only register pending changes; nothing is written until the
// unit of work saves.
type Repository[T any] interface {
	ReadOnlyRepository[T]

	// Find returns a lazy query filtered by filter. No I/O happens until a
	// terminal method of the query is called.
	Find(filter *types.QueryFilter) *Query[T]
	Get(ctx context.Context, id any) (*T, error)
	All(ctx context.Context) ([]*T, error)
	GetPaged(ctx context.Context, filter *types.QueryFilter, page, pageSize int) (*types.PagedResult[T], error)
	Page(ctx context.Context, req *types.PageRequest) (*types.PagedResult[T], error)

	Add(ctx context.Context, entity *T) error
	AddRange(ctx context.Context, entities ...*T) error
	Update(entity *T) error
	Remove(entity *T) error
}
