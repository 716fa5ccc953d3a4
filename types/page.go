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

package types

import (
	"fmt"
	"math"
	"regexp"
)

// orderPattern accepts "column", "alias.column" and either followed by
// ASC or DESC.
var orderPattern = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?( +(asc|desc))?$`)

// QueryFilter describes a WHERE clause schema and its argument values.
// It is the predicate type accepted by repositories.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageRequest describes pagination, optional filter, and ordering.
// Pages are 1-based.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int { return p.pageSize }

func (p *PageRequest) GetPage() int { return p.page }

// GetOffset returns the number of rows before the page. It saturates at
// math.MaxInt instead of overflowing; Validate rejects such pages.
func (p *PageRequest) GetOffset() int {
	if p.page <= 1 || p.pageSize <= 0 {
		return 0
	}
	if p.page-1 > math.MaxInt/p.pageSize {
		return math.MaxInt
	}
	return (p.page - 1) * p.pageSize
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// Validate rejects requests that cannot be served without issuing I/O.
// No clamping is applied: a page beyond the last one is valid as long as
// its offset fits in an int. Orders must be plain column references with
// an optional direction, since they are rendered into SQL unescaped.
func (p *PageRequest) Validate() error {
	if p.pageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidArgument, p.pageSize)
	}
	if p.page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidArgument, p.page)
	}
	if p.page-1 > math.MaxInt/p.pageSize {
		return fmt.Errorf("%w: page %d of size %d overflows the row offset", ErrInvalidArgument, p.page, p.pageSize)
	}
	for _, order := range p.orders {
		if !orderPattern.MatchString(order) {
			return fmt.Errorf("%w: order %q must be a column optionally followed by ASC or DESC", ErrInvalidArgument, order)
		}
	}
	return nil
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(page, pageSize, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// PagedResult holds one page of items along with pagination metadata.
type PagedResult[T any] struct {
	Items      []*T `json:"items"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
}

// NewPagedResult builds a result and derives TotalPages from the total.
func NewPagedResult[T any](items []*T, total, page, pageSize int) *PagedResult[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &PagedResult[T]{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
	}
}

// TotalPages returns ceil(total/pageSize), or 0 when pageSize is not positive.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
