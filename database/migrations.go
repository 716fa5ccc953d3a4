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
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/nerv/types"
)

// MigrationManager creates the tables of registered models and runs
// versioned migration steps exactly once per database.
type MigrationManager struct {
	db         *bun.DB
	logger     Logger
	models     ModelRegistry
	migrations []MigrationItem
}

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:nerv_migrations,alias:m"`

	Version     string    `bun:"version,pk" json:"version"`
	Name        string    `bun:"name" json:"name"`
	AppliedAt   time.Time `bun:"applied_at" json:"applied_at"`
	Description string    `bun:"description" json:"description,omitempty"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version with up/down functions.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// NewMigrationManager constructs a MigrationManager for db that creates the
// tables of models.
func NewMigrationManager(db *bun.DB, logger Logger, models ModelRegistry) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	if models == nil {
		models = NewModelRegistry()
	}
	return &MigrationManager{
		db:     db,
		logger: logger,
		models: models,
	}
}

// AddMigration registers a versioned step run after table creation.
func (mm *MigrationManager) AddMigration(item MigrationItem) {
	mm.migrations = append(mm.migrations, item)
}

// RunMigrations is idempotent: it creates missing tables and indexes of
// every registered model, then executes pending migration steps in
// ascending version order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	if err := mm.createModelTables(ctx, mm.db); err != nil {
		return err
	}

	migrations := make([]MigrationItem, len(mm.migrations))
	copy(migrations, mm.migrations)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Info("Database migrations completed!", "tables", len(mm.models.Models()), "steps", len(migrations))
	return nil
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) createModelTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.models.Models() {
		_, err := db.NewCreateTable().
			Model(model.Instance()).
			ModelTableExpr("?", bun.Ident(model.TableName())).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %s for %s: %w", model.TableName(), getModelName(model.Instance()), err)
		}
		for _, idx := range model.Indexes() {
			if err := mm.createIndex(ctx, db, model.TableName(), idx); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
			}
		}
		mm.logger.Debug("Table ready", "table", model.TableName(), "model", getModelName(model.Instance()))
	}
	return nil
}

func (mm *MigrationManager) createIndex(ctx context.Context, db bun.IDB, table string, idx IndexSpec) error {
	q := db.NewCreateIndex().
		Table(table).
		Index(idx.Name).
		Column(idx.Columns...)
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if mm.db.Dialect().Name() != dialect.MySQL {
		q = q.IfNotExists()
	}
	_, err := q.Exec(ctx)
	if ok, kind := IsSqlError(err); ok && kind == ExistIndexErr {
		return nil
	}
	return err
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if migration.Up != nil {
			if err := migration.Up(ctx, tx); err != nil {
				return err
			}
		}
		record := &Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
		return nil
	})
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// RollbackMigration runs the Down step of an applied migration and removes
// its record. Versions without a record are left untouched.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	var item *MigrationItem
	for i := range mm.migrations {
		if mm.migrations[i].Version == version {
			item = &mm.migrations[i]
			break
		}
	}
	if item == nil {
		return fmt.Errorf("%w: migration %s is not registered", types.ErrNotFound, version)
	}
	if item.Down == nil {
		return fmt.Errorf("%w: migration %s has no down step", types.ErrInvalidOperation, version)
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		applied, err := tx.NewSelect().
			Model((*Migration)(nil)).
			Where("version = ?", version).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: migration %s has not been applied", types.ErrNotFound, version)
		}
		if err := item.Down(ctx, tx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*Migration)(nil)).
			Where("version = ?", version).
			Exec(ctx)
		if err == nil {
			mm.logger.Info("Migration rolled back", "version", version, "name", item.Name)
		}
		return err
	})
}

func getModelName(model interface{}) string {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
