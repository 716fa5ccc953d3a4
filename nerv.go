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

// Package nerv bootstraps persistence contexts from configuration: it
// connects one database per configured context, binds each context to its
// entity model and exposes the resulting unit-of-work registry.
//
//	cfg, err := nerv.LoadConfig("nerv.yaml")
//	...
//	n, err := nerv.Open(ctx, cfg, map[string]nerv.Binding{
//		"blog": nerv.Models[string]((*Post)(nil), (*Comment)(nil)),
//	})
//	...
//	defer n.Close()
//
//	scope := n.NewScope(entity.NewActor("alice"))
//	defer scope.Close()
//	posts, err := uow.GetRepository[Post](scope, "blog")
package nerv

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/datacontext"
	"github.com/tomoncle/nerv/types"
	"github.com/tomoncle/nerv/uow"
)

// Binding turns a connected context into a registration.
type Binding func(name string, db *bun.DB, opts datacontext.Options) uow.Registration

// Models binds a context to the given entity models, with actors carrying
// user ids of type U.
func Models[U any](models ...interface{}) Binding {
	return func(name string, db *bun.DB, opts datacontext.Options) uow.Registration {
		return uow.Context[U](name, db, opts, models...)
	}
}

// Nerv holds the connections and the registry built from a Config.
type Nerv struct {
	config   *Config
	factory  *database.BaseDatabaseFactory
	registry *uow.Registry
	logger   database.Logger
}

// Open connects every configured context, binds it and runs the migrations
// of the contexts marked migrate_on_startup. Configured contexts without a
// binding are registered with no entities, so only their connection and
// migration table are usable. A binding without configuration is an error.
func Open(ctx context.Context, cfg *Config, bindings map[string]Binding) (*Nerv, error) {
	if cfg == nil || len(cfg.Contexts) == 0 {
		return nil, fmt.Errorf("%w: no contexts configured", types.ErrInvalidArgument)
	}
	for name := range bindings {
		if _, ok := cfg.Contexts[name]; !ok {
			return nil, fmt.Errorf("%w: no connection configured for context %q", types.ErrInvalidArgument, name)
		}
	}

	n := &Nerv{
		config:  cfg,
		factory: database.NewDatabaseFactory(),
		logger:  database.GetLogger(),
	}
	for _, name := range cfg.Names() {
		if _, err := n.factory.CreateFromConfig(name, cfg.Contexts[name].Connection); err != nil {
			return nil, err
		}
	}
	if err := n.factory.InitializeDatabase(ctx); err != nil {
		_ = n.factory.Close()
		return nil, err
	}

	regs := make([]uow.Registration, 0, len(cfg.Contexts))
	for _, name := range cfg.Names() {
		bind, ok := bindings[name]
		if !ok {
			n.logger.Warn("Context has no entity binding", "context", name)
			bind = Models[string]()
		}
		opts := cfg.Contexts[name].Options
		if opts.Logger == nil {
			opts.Logger = n.logger
		}
		regs = append(regs, bind(name, n.factory.GetDB(name), opts))
	}
	registry, err := uow.NewRegistry(regs...)
	if err != nil {
		_ = n.factory.Close()
		return nil, err
	}
	n.registry = registry

	for _, name := range cfg.Names() {
		if !cfg.Contexts[name].MigrateOnStartup {
			continue
		}
		if err := registry.Migrate(ctx, name); err != nil {
			_ = n.factory.Close()
			return nil, err
		}
	}
	return n, nil
}

func (n *Nerv) Config() *Config { return n.config }

func (n *Nerv) Registry() *uow.Registry { return n.registry }

func (n *Nerv) Factory() *database.BaseDatabaseFactory { return n.factory }

// NewScope returns a unit-of-work factory acting as actor.
func (n *Nerv) NewScope(actor any) *uow.Scope {
	return uow.NewScope(n.registry, actor)
}

// Health checks every context.
func (n *Nerv) Health(ctx context.Context) map[string]*database.HealthStatus {
	out := make(map[string]*database.HealthStatus, len(n.config.Contexts))
	for _, name := range n.factory.Names() {
		out[name] = n.factory.GetHealthStatus(ctx, name)
	}
	return out
}

// Stats returns the connection pool statistics of every context.
func (n *Nerv) Stats() map[string]*database.DBStats {
	out := make(map[string]*database.DBStats, len(n.config.Contexts))
	for _, name := range n.factory.Names() {
		out[name] = n.factory.GetStats(name)
	}
	return out
}

// Close disconnects every context.
func (n *Nerv) Close() error {
	return n.factory.Close()
}
