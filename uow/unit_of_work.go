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
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/repository"
	"github.com/tomoncle/nerv/types"
)

// UnitOfWork owns one data context, the actor it stamps with, an optional
// active transaction and one repository per entity type.
type UnitOfWork interface {
	// Name is the context name the unit of work was resolved under.
	Name() string
	DataContext() datacontext.DataContext

	// SaveChanges writes the pending change set and returns the number of
	// affected rows.
	SaveChanges(ctx context.Context) (int, error)
	// BeginTransaction starts a transaction. Calling it while one is
	// active is a no-op.
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	// RollbackTransaction rolls back the active transaction and discards
	// the pending change set.
	RollbackTransaction(ctx context.Context) error
	IsTransactionActive() bool

	Diagnostics() Diagnostics
	// Close rolls back an active transaction and releases the data
	// context. It may be called once.
	Close() error
	Closed() bool

	memoRepository(typ reflect.Type, build func() (any, error)) (any, error)
}

// Diagnostics describes the live state of a unit of work.
type Diagnostics struct {
	Context             string   `json:"context"`
	ActiveRepositories  []string `json:"active_repositories"`
	IsTransactionActive bool     `json:"is_transaction_active"`
	PendingChanges      int      `json:"pending_changes"`
}

type unitOfWork struct {
	name   string
	dc     datacontext.DataContext
	repos  map[reflect.Type]any
	order  []reflect.Type
	closed bool
	logger database.Logger
}

// New wraps dc in a unit of work registered under name.
func New(name string, dc datacontext.DataContext) UnitOfWork {
	return &unitOfWork{
		name:   name,
		dc:     dc,
		repos:  make(map[reflect.Type]any),
		logger: database.GetLogger(),
	}
}

// Repository returns the repository for T of u, creating it on first use.
// T must be registered in the context of u.
func Repository[T any](u UnitOfWork) (repository.Repository[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	r, err := u.memoRepository(typ, func() (any, error) {
		return repository.New[T](u.DataContext())
	})
	if err != nil {
		return nil, err
	}
	return r.(repository.Repository[T]), nil
}

// CachedRepository returns the repository for T of u with All served from
// cache. A nil cache uses a private cache with the default TTL.
func CachedRepository[T any](u UnitOfWork, cache *repository.Cache) (*repository.CachedRepository[T], error) {
	inner, err := Repository[T](u)
	if err != nil {
		return nil, err
	}
	return repository.NewCachedRepository(inner, cache), nil
}

func (u *unitOfWork) Name() string { return u.name }

func (u *unitOfWork) DataContext() datacontext.DataContext { return u.dc }

func (u *unitOfWork) memoRepository(typ reflect.Type, build func() (any, error)) (any, error) {
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	if r, ok := u.repos[typ]; ok {
		return r, nil
	}
	r, err := build()
	if err != nil {
		return nil, err
	}
	u.repos[typ] = r
	u.order = append(u.order, typ)
	return r, nil
}

func (u *unitOfWork) SaveChanges(ctx context.Context) (int, error) {
	if err := u.checkOpen(); err != nil {
		return 0, err
	}
	return u.dc.SaveChanges(ctx)
}

func (u *unitOfWork) BeginTransaction(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	_, err := u.dc.BeginTransaction(ctx)
	return err
}

func (u *unitOfWork) CommitTransaction(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	tx := u.dc.Transaction()
	if tx == nil {
		return nil
	}
	if err := types.CheckContext(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		u.logger.Error("Failed to commit transaction", "context", u.name, "error", err)
		return err
	}
	u.logger.Debug("Transaction committed", "context", u.name)
	return nil
}

func (u *unitOfWork) RollbackTransaction(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	tx := u.dc.Transaction()
	if tx == nil {
		return nil
	}
	u.dc.DiscardChanges()
	if err := tx.Rollback(); err != nil {
		u.logger.Error("Failed to roll back transaction", "context", u.name, "error", err)
		return err
	}
	u.logger.Debug("Transaction rolled back", "context", u.name)
	return nil
}

func (u *unitOfWork) IsTransactionActive() bool {
	return !u.closed && u.dc.Transaction() != nil
}

func (u *unitOfWork) Diagnostics() Diagnostics {
	names := make([]string, 0, len(u.order))
	for _, typ := range u.order {
		names = append(names, typ.Name())
	}
	return Diagnostics{
		Context:             u.name,
		ActiveRepositories:  names,
		IsTransactionActive: u.IsTransactionActive(),
		PendingChanges:      len(u.dc.Entries()),
	}
}

func (u *unitOfWork) Close() error {
	if u.closed {
		return fmt.Errorf("%w: unit of work %q already closed", types.ErrInvalidOperation, u.name)
	}
	u.closed = true
	u.repos = nil
	u.order = nil
	return u.dc.Close()
}

func (u *unitOfWork) Closed() bool { return u.closed }

func (u *unitOfWork) checkOpen() error {
	if u.closed {
		return fmt.Errorf("%w: unit of work %q is closed", types.ErrInvalidOperation, u.name)
	}
	return nil
}
