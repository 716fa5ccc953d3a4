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

package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/uptrace/bun"
)

var supportedTypes = []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}

// BaseDatabaseFactory creates one database manager per named context and
// provides helpers for initialization, health checks, and statistics.
type BaseDatabaseFactory struct {
	mu       sync.RWMutex
	managers map[string]AbstractDatabaseManager
	logger   Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		managers: make(map[string]AbstractDatabaseManager),
		logger:   GetLogger(),
	}
}

// EnvPrefix returns the environment variable prefix for a context name,
// e.g. "DB_MAIN_" for "main" and "DB_AUDIT_LOG_" for "audit-log".
func EnvPrefix(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return "DB_" + upper + "_"
}

// ApplyEnv overrides cfg from DB_<NAME>_* environment variables.
// Variables that are not set leave the configured value untouched.
func ApplyEnv(name string, cfg *ConnectionConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix(name)}); err != nil {
		return fmt.Errorf("failed to read environment for context %q: %w", name, err)
	}
	return nil
}

// CreateFromConfig constructs the database manager of the named context,
// applying environment overrides first.
func (f *BaseDatabaseFactory) CreateFromConfig(name string, cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := ApplyEnv(name, cfg); err != nil {
		return nil, err
	}
	if !slices.Contains(supportedTypes, cfg.Type) {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, supportedTypes)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.managers[name]; ok {
		return nil, fmt.Errorf("database manager for context %q already exists", name)
	}
	manager := NewDatabaseManager(name, cfg)
	manager.SetLogger(f.logger)
	f.managers[name] = manager
	return manager, nil
}

// Register adds an externally built manager under its name.
func (f *BaseDatabaseFactory) Register(manager AbstractDatabaseManager) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.managers[manager.Name()]; ok {
		return fmt.Errorf("database manager for context %q already exists", manager.Name())
	}
	f.managers[manager.Name()] = manager
	return nil
}

// InitializeDatabase connects every manager.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context) error {
	for _, name := range f.Names() {
		if err := f.GetManager(name).Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to database %q: %w", name, err)
		}
	}
	f.logger.Info("Database initialization completed!", "contexts", len(f.Names()))
	return nil
}

// Names returns the registered context names in sorted order.
func (f *BaseDatabaseFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.managers))
	for name := range f.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *BaseDatabaseFactory) GetManager(name string) AbstractDatabaseManager {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.managers[name]
}

// GetDB returns the bun database of a context, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB(name string) *bun.DB {
	m := f.GetManager(name)
	if m == nil {
		return nil
	}
	return m.GetDB()
}

// SetLogger sets the logger on the factory and every manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
	for _, m := range f.managers {
		m.SetLogger(logger)
	}
}

// Close disconnects every manager and returns the first error.
func (f *BaseDatabaseFactory) Close() error {
	var first error
	for _, name := range f.Names() {
		if err := f.GetManager(name).Disconnect(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetHealthStatus returns the health status of a context.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context, name string) *HealthStatus {
	m := f.GetManager(name)
	if m == nil {
		return &HealthStatus{
			LastError:     fmt.Sprintf("no database manager for context %q", name),
			LastCheckTime: time.Now(),
		}
	}
	return m.HealthCheck(ctx)
}

// GetStats returns connection statistics of a context.
func (f *BaseDatabaseFactory) GetStats(name string) *DBStats {
	m := f.GetManager(name)
	if m == nil {
		return &DBStats{}
	}
	return m.GetStats()
}
