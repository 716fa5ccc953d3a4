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
	"context"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
)

// DataContext is a single-session change tracker over one database. It is
// not safe for concurrent use.
type DataContext interface {
	// Model returns the shared mapping of the context.
	Model() *Model
	// DB returns the active transaction, or the database when none is active.
	DB() bun.IDB
	// Select starts a query over model with the standing filters applied.
	Select(model interface{}) *bun.SelectQuery
	// SelectUnfiltered starts a query over model without standing filters.
	SelectUnfiltered(model interface{}) *bun.SelectQuery

	Add(ctx context.Context, entity interface{}) error
	Update(entity interface{}) error
	Remove(entity interface{}) error
	Entries() []Entry
	DiscardChanges()
	SaveChanges(ctx context.Context) (int, error)

	BeginTransaction(ctx context.Context) (Transaction, error)
	Transaction() Transaction

	ApplyMigrations(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]database.Migration, error)
	RollbackMigration(ctx context.Context, version string) error
	// Closed reports whether Close has been called.
	Closed() bool
	IsRegistered(model interface{}) bool
	TableName(model interface{}) (string, error)
	Close() error
}

// Entry is one pending change.
type Entry struct {
	Entity interface{}
	State  types.EntityState
	table  *TableInfo
}

// Table returns the table the entry is written to.
func (e Entry) Table() string { return e.table.Name }

type dataContext[U any] struct {
	db      *bun.DB
	model   *Model
	actor   entity.Actor[U]
	opts    Options
	logger  database.Logger
	entries []Entry
	index   map[interface{}]int
	tx      *transaction
	closed  bool
}

// New returns a data context over db for the given model. The actor is
// captured once and used for every audit stamp of this context.
func New[U any](db *bun.DB, model *Model, actor entity.Actor[U], opts Options) DataContext {
	return &dataContext[U]{
		db:     db,
		model:  model,
		actor:  actor,
		opts:   opts,
		logger: opts.logger(),
		index:  make(map[interface{}]int),
	}
}

func (dc *dataContext[U]) Model() *Model { return dc.model }

func (dc *dataContext[U]) DB() bun.IDB {
	if dc.tx != nil {
		return dc.tx.tx
	}
	return dc.db
}

func (dc *dataContext[U]) Select(model interface{}) *bun.SelectQuery {
	q := dc.SelectUnfiltered(model)
	if info, ok := dc.model.Table(model); ok && info.SoftDelete {
		q = q.Where("?.? = ?", bun.Ident(info.Alias), bun.Ident(isDeletedColumn), false)
	}
	return q
}

func (dc *dataContext[U]) SelectUnfiltered(model interface{}) *bun.SelectQuery {
	q := dc.DB().NewSelect().Model(model)
	if info, ok := dc.model.Table(model); ok {
		expr, args := info.TableExpr()
		q = q.ModelTableExpr(expr, args...)
	}
	return q
}

func (dc *dataContext[U]) Add(ctx context.Context, e interface{}) error {
	if err := dc.checkOpen(); err != nil {
		return err
	}
	if err := types.CheckContext(ctx); err != nil {
		return err
	}
	info, err := dc.resolve(e)
	if err != nil {
		return err
	}
	if i, ok := dc.index[e]; ok {
		if dc.entries[i].State == types.Added {
			return nil
		}
		return fmt.Errorf("%w: %s entity is already tracked as %s", types.ErrInvalidOperation, info.Type.Name(), dc.entries[i].State)
	}
	dc.track(e, info, types.Added)
	return nil
}

func (dc *dataContext[U]) Update(e interface{}) error {
	if err := dc.checkOpen(); err != nil {
		return err
	}
	info, err := dc.resolve(e)
	if err != nil {
		return err
	}
	if i, ok := dc.index[e]; ok {
		if dc.entries[i].State == types.Deleted {
			return fmt.Errorf("%w: %s entity is pending deletion", types.ErrInvalidOperation, info.Type.Name())
		}
		return nil
	}
	dc.track(e, info, types.Modified)
	return nil
}

func (dc *dataContext[U]) Remove(e interface{}) error {
	if err := dc.checkOpen(); err != nil {
		return err
	}
	info, err := dc.resolve(e)
	if err != nil {
		return err
	}
	if i, ok := dc.index[e]; ok {
		switch dc.entries[i].State {
		case types.Added:
			dc.untrack(i)
		case types.Modified:
			dc.entries[i].State = types.Deleted
		}
		return nil
	}
	dc.track(e, info, types.Deleted)
	return nil
}

func (dc *dataContext[U]) Entries() []Entry {
	out := make([]Entry, len(dc.entries))
	copy(out, dc.entries)
	return out
}

func (dc *dataContext[U]) DiscardChanges() {
	dc.entries = nil
	dc.index = make(map[interface{}]int)
}

func (dc *dataContext[U]) IsRegistered(model interface{}) bool {
	_, ok := dc.model.Table(model)
	return ok
}

func (dc *dataContext[U]) TableName(model interface{}) (string, error) {
	info, ok := dc.model.Table(model)
	if !ok {
		return "", fmt.Errorf("%w: %T is not registered", types.ErrInvalidOperation, model)
	}
	return info.Name, nil
}

func (dc *dataContext[U]) ApplyMigrations(ctx context.Context) error {
	if err := dc.checkOpen(); err != nil {
		return err
	}
	if err := types.CheckContext(ctx); err != nil {
		return err
	}
	if err := dc.migrations().RunMigrations(ctx); err != nil {
		return database.WrapError("migrate", err)
	}
	return nil
}

// AppliedMigrations lists the migration steps recorded in the database.
func (dc *dataContext[U]) AppliedMigrations(ctx context.Context) ([]database.Migration, error) {
	if err := dc.checkOpen(); err != nil {
		return nil, err
	}
	applied, err := dc.migrations().GetAppliedMigrations(ctx)
	if err != nil {
		return nil, database.WrapError("select", err)
	}
	return applied, nil
}

// RollbackMigration runs the down step of the applied migration version.
func (dc *dataContext[U]) RollbackMigration(ctx context.Context, version string) error {
	if err := dc.checkOpen(); err != nil {
		return err
	}
	if err := types.CheckContext(ctx); err != nil {
		return err
	}
	if err := dc.migrations().RollbackMigration(ctx, version); err != nil {
		return database.WrapError("rollback migration", err)
	}
	return nil
}

func (dc *dataContext[U]) migrations() *database.MigrationManager {
	mm := database.NewMigrationManager(dc.db, dc.logger, dc.model.Registry())
	for _, item := range dc.opts.Migrations {
		mm.AddMigration(item)
	}
	return mm
}

func (dc *dataContext[U]) Close() error {
	if dc.closed {
		return fmt.Errorf("%w: data context already closed", types.ErrInvalidOperation)
	}
	var err error
	if dc.tx != nil {
		err = dc.tx.Rollback()
	}
	dc.DiscardChanges()
	dc.closed = true
	return err
}

func (dc *dataContext[U]) Closed() bool { return dc.closed }

func (dc *dataContext[U]) checkOpen() error {
	if dc.closed {
		return fmt.Errorf("%w: data context is closed", types.ErrInvalidOperation)
	}
	return nil
}

func (dc *dataContext[U]) resolve(e interface{}) (*TableInfo, error) {
	v := reflect.ValueOf(e)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity must be a non-nil pointer to struct, got %T", types.ErrInvalidArgument, e)
	}
	info, ok := dc.model.Table(e)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not registered in this context", types.ErrInvalidOperation, e)
	}
	return info, nil
}

func (dc *dataContext[U]) track(e interface{}, info *TableInfo, state types.EntityState) {
	dc.index[e] = len(dc.entries)
	dc.entries = append(dc.entries, Entry{Entity: e, State: state, table: info})
}

func (dc *dataContext[U]) untrack(i int) {
	delete(dc.index, dc.entries[i].Entity)
	dc.entries = append(dc.entries[:i], dc.entries[i+1:]...)
	for j := i; j < len(dc.entries); j++ {
		dc.index[dc.entries[j].Entity] = j
	}
}
