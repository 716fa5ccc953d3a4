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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
)

// SaveChanges writes every pending change atomically and returns the number
// of affected rows. It runs inside the active transaction when there is one
// and inside a local transaction otherwise. On failure the local
// transaction is rolled back, the pending changes are kept and an active
// transaction is left open for the caller to roll back.
func (dc *dataContext[U]) SaveChanges(ctx context.Context) (int, error) {
	if err := dc.checkOpen(); err != nil {
		return 0, err
	}
	if err := types.CheckContext(ctx); err != nil {
		return 0, err
	}
	if len(dc.entries) == 0 {
		return 0, nil
	}

	start := time.Now()
	now := dc.opts.now()
	dc.stamp(now)

	var undo []func()
	var affected int
	var err error
	if dc.tx != nil {
		affected, err = dc.apply(ctx, dc.tx.tx, now, &undo)
	} else {
		err = dc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var txErr error
			affected, txErr = dc.apply(ctx, tx, now, &undo)
			return txErr
		})
	}
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		err = database.WrapError("save", err)
		dc.logger.Error("Failed to save changes", "entries", len(dc.entries), "error", err)
		return 0, err
	}

	dc.logger.Debug("Changes saved", "entries", len(dc.entries), "rows", affected, "elapsed", time.Since(start))
	dc.DiscardChanges()
	return affected, nil
}

// stamp applies the audit rules to every pending entry.
func (dc *dataContext[U]) stamp(now time.Time) {
	by := dc.actor.UserID()
	for _, e := range dc.entries {
		a, ok := e.Entity.(entity.Auditable[U])
		if !ok {
			continue
		}
		switch e.State {
		case types.Added:
			a.SetCreated(now, by)
		case types.Modified:
			a.SetUpdated(now, by)
		case types.Deleted:
			if d, ok := e.Entity.(entity.DeletableAuditable[U]); ok && e.table.SoftDelete {
				d.MarkDeleted(now, by)
				a.SetUpdated(now, by)
			}
		}
	}
}

func (dc *dataContext[U]) apply(ctx context.Context, db bun.IDB, now time.Time, undo *[]func()) (int, error) {
	total := 0
	for _, e := range dc.entries {
		if err := types.CheckContext(ctx); err != nil {
			return total, err
		}
		var n int64
		var err error
		switch {
		case e.State == types.Added:
			n, err = dc.insert(ctx, db, e, undo)
		case e.State == types.Modified, e.State == types.Deleted && e.table.SoftDelete:
			n, err = dc.update(ctx, db, e, now, undo)
		case e.State == types.Deleted:
			n, err = dc.delete(ctx, db, e)
		}
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

func (dc *dataContext[U]) insert(ctx context.Context, db bun.IDB, e Entry, undo *[]func()) (int64, error) {
	if v, ok := e.Entity.(entity.Versioned); ok && e.table.Versioned {
		old := v.GetRowVersion()
		v.SetRowVersion(1)
		*undo = append(*undo, func() { v.SetRowVersion(old) })
	}
	res, err := db.NewInsert().
		Model(e.Entity).
		ModelTableExpr("?", bun.Ident(e.table.Name)).
		Exec(ctx)
	if err != nil {
		return 0, database.WrapError("insert "+e.table.Name, err)
	}
	return rowsAffected(res), nil
}

func (dc *dataContext[U]) update(ctx context.Context, db bun.IDB, e Entry, now time.Time, undo *[]func()) (int64, error) {
	expr, args := e.table.TableExpr()
	q := db.NewUpdate().
		Model(e.Entity).
		ModelTableExpr(expr, args...).
		WherePK()

	var old int64
	v, versioned := e.Entity.(entity.Versioned)
	versioned = versioned && e.table.Versioned
	if versioned {
		old = v.GetRowVersion()
		q = q.Where("?.? = ?", bun.Ident(e.table.Alias), bun.Ident(rowVersionColumn), old)
		v.SetRowVersion(old + 1)
		*undo = append(*undo, func() { v.SetRowVersion(old) })
	}

	var logs []*entity.ChangeLog
	if dc.model.changeLog != nil {
		var err error
		if logs, err = dc.diff(ctx, db, e, now); err != nil {
			return 0, database.WrapError("change log "+e.table.Name, err)
		}
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, database.WrapError("update "+e.table.Name, err)
	}
	n := rowsAffected(res)
	if versioned && n == 0 {
		return 0, conflict("update", e.table, old)
	}

	if len(logs) > 0 {
		_, err := db.NewInsert().
			Model(&logs).
			ModelTableExpr("?", bun.Ident(dc.model.changeLog.Name)).
			Exec(ctx)
		if err != nil {
			return 0, database.WrapError("change log "+e.table.Name, err)
		}
	}
	return n, nil
}

func (dc *dataContext[U]) delete(ctx context.Context, db bun.IDB, e Entry) (int64, error) {
	expr, args := e.table.TableExpr()
	q := db.NewDelete().
		Model(e.Entity).
		ModelTableExpr(expr, args...).
		WherePK()

	var old int64
	v, versioned := e.Entity.(entity.Versioned)
	versioned = versioned && e.table.Versioned
	if versioned {
		old = v.GetRowVersion()
		q = q.Where("?.? = ?", bun.Ident(e.table.Alias), bun.Ident(rowVersionColumn), old)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, database.WrapError("delete "+e.table.Name, err)
	}
	n := rowsAffected(res)
	if versioned && n == 0 {
		return 0, conflict("delete", e.table, old)
	}
	return n, nil
}

// diff loads the stored row of an entry and returns one change log record
// per column whose value differs from the pending entity.
func (dc *dataContext[U]) diff(ctx context.Context, db bun.IDB, e Entry, now time.Time) ([]*entity.ChangeLog, error) {
	table := e.table.table
	src := reflect.ValueOf(e.Entity).Elem()
	stored := reflect.New(e.table.Type)

	ids := make([]string, 0, len(table.PKs))
	for _, pk := range table.PKs {
		pk.Value(stored.Elem()).Set(pk.Value(src))
		ids = append(ids, fmt.Sprint(pk.Value(src).Interface()))
	}

	expr, args := e.table.TableExpr()
	err := db.NewSelect().
		Model(stored.Interface()).
		ModelTableExpr(expr, args...).
		WherePK().
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	by := fmt.Sprint(dc.actor.UserID())
	var logs []*entity.ChangeLog
	for _, f := range table.DataFields {
		before := renderValue(f.Value(stored.Elem()))
		after := renderValue(f.Value(src))
		if sameRendered(before, after) {
			continue
		}
		logs = append(logs, &entity.ChangeLog{
			ID:        uuid.NewString(),
			Table:     e.table.Name,
			EntityID:  strings.Join(ids, ","),
			Column:    f.Name,
			OldValue:  before,
			NewValue:  after,
			ChangedBy: by,
			Timestamp: now,
		})
	}
	return logs, nil
}

func renderValue(v reflect.Value) *string {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	var s string
	if t, ok := v.Interface().(time.Time); ok {
		s = t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
	} else {
		s = fmt.Sprint(v.Interface())
	}
	return &s
}

func sameRendered(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func conflict(op string, table *TableInfo, version int64) error {
	return &types.PersistenceError{
		Op:     op + " " + table.Name,
		Reason: "concurrency_conflict",
		Err:    fmt.Errorf("%w: row version %d is stale", types.ErrConcurrencyConflict, version),
	}
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
