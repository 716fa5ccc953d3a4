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
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
	"github.com/tomoncle/nerv/utils"
)

// Registration binds a context name to a database and an entity model.
// Build registrations with Context.
type Registration interface {
	Name() string
	DB() *bun.DB
	Model() *datacontext.Model

	newUnitOfWork(actor any) (UnitOfWork, error)
	withContext(fn func(dc datacontext.DataContext) error) error
	err() error
}

type registration[U any] struct {
	name     string
	db       *bun.DB
	opts     datacontext.Options
	model    *datacontext.Model
	buildErr error
}

// Context registers a persistence context named name over db whose
// entities are models and whose actors carry user ids of type U. Errors
// in the model surface from NewRegistry.
func Context[U any](name string, db *bun.DB, opts datacontext.Options, models ...interface{}) Registration {
	r := &registration[U]{name: name, db: db, opts: opts}
	if name == "" {
		r.buildErr = fmt.Errorf("%w: context name is required", types.ErrInvalidArgument)
		return r
	}
	if db == nil {
		r.buildErr = fmt.Errorf("%w: context %q has no database", types.ErrInvalidArgument, name)
		return r
	}
	r.model, r.buildErr = datacontext.BuildModel[U](db, opts, models...)
	if r.buildErr != nil {
		r.buildErr = fmt.Errorf("context %q: %w", name, r.buildErr)
	}
	return r
}

func (r *registration[U]) Name() string { return r.name }

func (r *registration[U]) DB() *bun.DB { return r.db }

func (r *registration[U]) Model() *datacontext.Model { return r.model }

func (r *registration[U]) err() error { return r.buildErr }

// newUnitOfWork accepts an entity.Actor[U] or a bare U.
func (r *registration[U]) newUnitOfWork(actor any) (UnitOfWork, error) {
	var a entity.Actor[U]
	switch v := actor.(type) {
	case entity.Actor[U]:
		a = v
	case U:
		a = entity.NewActor(v)
	default:
		var zero U
		return nil, fmt.Errorf("%w: context %q expects an actor with a %T user id, got %T",
			types.ErrInvalidOperation, r.name, zero, actor)
	}
	return New(r.name, datacontext.New(r.db, r.model, a, r.opts)), nil
}

// withContext runs fn against a throwaway data context with no actor.
func (r *registration[U]) withContext(fn func(dc datacontext.DataContext) error) error {
	dc := datacontext.New(r.db, r.model, entity.Actor[U]{}, r.opts)
	defer func() { _ = dc.Close() }()
	return fn(dc)
}

// Registry maps context names to registrations. It is immutable once
// built and safe for concurrent use.
type Registry struct {
	regs   map[string]Registration
	logger database.Logger
}

// NewRegistry validates regs and indexes them by name. Duplicate names
// fail with types.ErrInvalidOperation.
func NewRegistry(regs ...Registration) (*Registry, error) {
	registry := &Registry{
		regs:   make(map[string]Registration, len(regs)),
		logger: database.GetLogger(),
	}
	for _, reg := range regs {
		if reg == nil {
			return nil, fmt.Errorf("%w: nil registration", types.ErrInvalidArgument)
		}
		if err := reg.err(); err != nil {
			return nil, err
		}
		if _, ok := registry.regs[reg.Name()]; ok {
			return nil, fmt.Errorf("%w: context %q registered twice", types.ErrInvalidOperation, reg.Name())
		}
		registry.regs[reg.Name()] = reg
	}
	return registry, nil
}

// Names returns the registered context names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.regs))
	for name := range r.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.regs[name]
	return reg, ok
}

func (r *Registry) lookup(name string) (Registration, error) {
	reg, ok := r.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w: no unit of work registered for context '%s'", types.ErrNotFound, name)
	}
	return reg, nil
}

// ApplyMigrations creates the tables and indexes of every context.
func (r *Registry) ApplyMigrations(ctx context.Context) error {
	for _, name := range r.Names() {
		if err := r.Migrate(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Migrate creates the tables and indexes of the named context.
func (r *Registry) Migrate(ctx context.Context, name string) error {
	reg, err := r.lookup(name)
	if err != nil {
		return err
	}
	start := time.Now()
	err = reg.withContext(func(dc datacontext.DataContext) error {
		return dc.ApplyMigrations(ctx)
	})
	if err != nil {
		r.logger.Error("Failed to migrate context", "context", name, "error", err)
		return fmt.Errorf("migrate context %q: %w", name, err)
	}
	r.logger.Info("Context migrated", "context", name, "elapsed", utils.Elapsed(start))
	return nil
}

// AppliedMigrations lists the migration steps recorded for the named
// context.
func (r *Registry) AppliedMigrations(ctx context.Context, name string) ([]database.Migration, error) {
	reg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	var applied []database.Migration
	err = reg.withContext(func(dc datacontext.DataContext) error {
		applied, err = dc.AppliedMigrations(ctx)
		return err
	})
	return applied, err
}

// RollbackMigration undoes one applied migration step of the named context.
func (r *Registry) RollbackMigration(ctx context.Context, name, version string) error {
	reg, err := r.lookup(name)
	if err != nil {
		return err
	}
	err = reg.withContext(func(dc datacontext.DataContext) error {
		return dc.RollbackMigration(ctx, version)
	})
	if err != nil {
		r.logger.Error("Failed to roll back migration", "context", name, "version", version, "error", err)
		return err
	}
	r.logger.Info("Migration rolled back", "context", name, "version", version)
	return nil
}
