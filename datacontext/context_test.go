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
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
)

func newNote(title string) *Note {
	n := &Note{Title: title}
	n.ID = uuid.NewString()
	return n
}

func newAccount(email string) *Account {
	a := &Account{Email: email}
	a.ID = uuid.NewString()
	return a
}

func TestSaveChanges_InsertStampsCreated(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	n := newNote("first")
	require.NoError(t, dc.Add(ctx, n))
	require.Len(t, dc.Entries(), 1)
	assert.Equal(t, types.Added, dc.Entries()[0].State)
	assert.Equal(t, "notes", dc.Entries()[0].Table())

	rows, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Empty(t, dc.Entries())

	assert.True(t, n.CreatedOn.Equal(fixedNow))
	require.NotNil(t, n.CreatedBy)
	assert.Equal(t, "alice", *n.CreatedBy)
	assert.Nil(t, n.UpdatedOn)
	assert.Nil(t, n.UpdatedBy)

	var stored Note
	require.NoError(t, dc.Select(&stored).Where("n.id = ?", n.ID).Scan(ctx))
	assert.Equal(t, "first", stored.Title)
	assert.WithinDuration(t, fixedNow, stored.CreatedOn, time.Second)
	assert.Nil(t, stored.UpdatedOn)
}

func TestSaveChanges_GeneratedIntKeys(t *testing.T) {
	ctx := t.Context()
	opts := testOptions()
	db := newTestDB(t)
	model, err := BuildModel[string](db, opts, (*Ticket)(nil))
	require.NoError(t, err)
	info, _ := model.Table((*Ticket)(nil))
	assert.True(t, info.SoftDelete)
	dc := New[string](db, model, entity.NewActor("alice"), opts)
	require.NoError(t, dc.ApplyMigrations(ctx))

	first, second := &Ticket{Subject: "printer"}, &Ticket{Subject: "vpn"}
	require.NoError(t, dc.Add(ctx, first))
	require.NoError(t, dc.Add(ctx, second))
	rows, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	assert.NotZero(t, first.ID)
	assert.NotZero(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.CreatedOn.Equal(fixedNow))

	require.NoError(t, dc.Remove(second))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	var live []Ticket
	require.NoError(t, dc.Select(&live).Scan(ctx))
	require.Len(t, live, 1)
	assert.Equal(t, first.ID, live[0].ID)
	assert.Equal(t, "printer", live[0].Subject)
}

func TestSaveChanges_UpdateStampsUpdated(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	n := newNote("draft")
	require.NoError(t, dc.Add(ctx, n))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	created := n.AuditInfo()

	n.Title = "final"
	require.NoError(t, dc.Update(n))
	rows, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	require.NotNil(t, n.UpdatedOn)
	assert.True(t, n.UpdatedOn.Equal(fixedNow))
	assert.Equal(t, "alice", *n.UpdatedBy)
	assert.Equal(t, created.CreatedOn, n.CreatedOn)
	assert.Equal(t, *created.CreatedBy, *n.CreatedBy)

	var stored Note
	require.NoError(t, dc.Select(&stored).Where("n.id = ?", n.ID).Scan(ctx))
	assert.Equal(t, "final", stored.Title)
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, "alice", *stored.UpdatedBy)
}

func TestSaveChanges_SoftDelete(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	a := newAccount("a@example.com")
	require.NoError(t, dc.Add(ctx, a))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.Remove(a))
	rows, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	assert.True(t, a.IsDeleted)
	require.NotNil(t, a.DeletedOn)
	assert.Equal(t, "alice", *a.DeletedBy)
	require.NotNil(t, a.UpdatedOn)

	visible, err := dc.Select((*Account)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, visible)

	var stored []*Account
	require.NoError(t, dc.SelectUnfiltered(&stored).Scan(ctx))
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsDeleted)
	require.NotNil(t, stored[0].DeletedBy)
	assert.Equal(t, "alice", *stored[0].DeletedBy)
}

func TestSaveChanges_PhysicalDelete(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	n := newNote("gone")
	require.NoError(t, dc.Add(ctx, n))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.Remove(n))
	rows, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	count, err := dc.SelectUnfiltered((*Note)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveChanges_NoCapabilities(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	tag := &Tag{ID: uuid.NewString(), Label: "go"}
	require.NoError(t, dc.Add(ctx, tag))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.Remove(tag))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	count, err := dc.Select((*Tag)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveChanges_RowVersion(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	inv := &Invoice{Amount: 100}
	inv.ID = uuid.NewString()
	require.NoError(t, dc.Add(ctx, inv))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.RowVersion)

	stale := *inv

	inv.Amount = 150
	require.NoError(t, dc.Update(inv))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inv.RowVersion)

	stale.Amount = 175
	require.NoError(t, dc.Update(&stale))
	_, err = dc.SaveChanges(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConcurrencyConflict)
	var pe *types.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "concurrency_conflict", pe.Reason)
	assert.Equal(t, int64(1), stale.RowVersion, "version is restored after a failed save")
	assert.Len(t, dc.Entries(), 1, "pending changes survive a failed save")

	var stored Invoice
	require.NoError(t, dc.Select(&stored).Where("i.id = ?", inv.ID).Scan(ctx))
	assert.Equal(t, int64(150), stored.Amount)
	assert.Equal(t, int64(2), stored.RowVersion)
}

func TestSaveChanges_RollsBackLocalTransaction(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	first := newAccount("dup@example.com")
	require.NoError(t, dc.Add(ctx, first))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)

	ok := newNote("kept only on success")
	dup := newAccount("dup@example.com")
	require.NoError(t, dc.Add(ctx, ok))
	require.NoError(t, dc.Add(ctx, dup))

	_, err = dc.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, types.IsPersistenceError(err))
	var pe *types.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "duplicate_key", pe.Reason)
	assert.Len(t, dc.Entries(), 2)

	count, err := dc.Select((*Note)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "the note insert is rolled back with the failing account insert")
}

func TestSaveChanges_Canceled(t *testing.T) {
	dc, _ := newMigratedContext(t, testOptions())

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, dc.Add(ctx, newNote("never")))
	cancel()

	_, err := dc.SaveChanges(ctx)
	assert.ErrorIs(t, err, types.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, dc.Entries(), 1)
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	again, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Same(t, tx, again)

	kept := newNote("kept")
	require.NoError(t, dc.Add(ctx, kept))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Nil(t, dc.Transaction())
	assert.ErrorIs(t, tx.Commit(), types.ErrInvalidOperation)

	tx, err = dc.BeginTransaction(ctx)
	require.NoError(t, err)
	dropped := newNote("dropped")
	require.NoError(t, dc.Add(ctx, dropped))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var notes []*Note
	require.NoError(t, dc.Select(&notes).Scan(ctx))
	require.Len(t, notes, 1)
	assert.Equal(t, kept.ID, notes[0].ID)
}

func TestTransaction_SurvivesCanceledBeginContext(t *testing.T) {
	dc, _ := newMigratedContext(t, testOptions())

	ctx, cancel := context.WithCancel(t.Context())
	tx, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	cancel()

	require.NoError(t, dc.Add(t.Context(), newNote("after cancel")))
	_, err = dc.SaveChanges(t.Context())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	count, err := dc.Select((*Note)(nil)).Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTracker(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	n := newNote("tracked")
	require.NoError(t, dc.Add(ctx, n))
	require.NoError(t, dc.Add(ctx, n))
	require.NoError(t, dc.Update(n))
	assert.Len(t, dc.Entries(), 1)
	assert.Equal(t, types.Added, dc.Entries()[0].State)

	require.NoError(t, dc.Remove(n))
	assert.Empty(t, dc.Entries(), "removing an added entity detaches it")

	m := newNote("modified")
	require.NoError(t, dc.Update(m))
	require.NoError(t, dc.Remove(m))
	require.Len(t, dc.Entries(), 1)
	assert.Equal(t, types.Deleted, dc.Entries()[0].State)
	assert.ErrorIs(t, dc.Update(m), types.ErrInvalidOperation)
	assert.ErrorIs(t, dc.Add(ctx, m), types.ErrInvalidOperation)

	dc.DiscardChanges()
	assert.Empty(t, dc.Entries())
}

func TestAdd_Rejects(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	assert.ErrorIs(t, dc.Add(ctx, nil), types.ErrInvalidArgument)
	assert.ErrorIs(t, dc.Add(ctx, (*Note)(nil)), types.ErrInvalidArgument)
	assert.ErrorIs(t, dc.Add(ctx, Note{}), types.ErrInvalidArgument)
	assert.ErrorIs(t, dc.Add(ctx, &UserAccount{ID: "x"}), types.ErrInvalidOperation)
	assert.False(t, dc.IsRegistered(&UserAccount{}))

	name, err := dc.TableName(&Account{})
	require.NoError(t, err)
	assert.Equal(t, "accounts", name)
	_, err = dc.TableName(&UserAccount{})
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
}

func TestClose(t *testing.T) {
	ctx := t.Context()
	dc, _ := newMigratedContext(t, testOptions())

	_, err := dc.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, dc.Add(ctx, newNote("uncommitted")))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, dc.Close())
	assert.ErrorIs(t, dc.Close(), types.ErrInvalidOperation)
	assert.ErrorIs(t, dc.Add(ctx, newNote("late")), types.ErrInvalidOperation)
	_, err = dc.SaveChanges(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)
	_, err = dc.BeginTransaction(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidOperation)

	count, err := dc.Select((*Note)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "closing rolls back the active transaction")
}

func TestChangeLog(t *testing.T) {
	ctx := t.Context()
	opts := testOptions()
	opts.EnableChangeLog = true
	dc, _ := newMigratedContext(t, opts)

	n := newNote("before")
	require.NoError(t, dc.Add(ctx, n))
	_, err := dc.SaveChanges(ctx)
	require.NoError(t, err)

	n.Title = "after"
	require.NoError(t, dc.Update(n))
	_, err = dc.SaveChanges(ctx)
	require.NoError(t, err)

	var logs []*entity.ChangeLog
	require.NoError(t, dc.DB().NewSelect().Model(&logs).
		Where("entity_id = ?", n.ID).
		Where("column_name = ?", "title").
		Scan(ctx))
	require.Len(t, logs, 1)
	assert.Equal(t, "notes", logs[0].Table)
	require.NotNil(t, logs[0].OldValue)
	require.NotNil(t, logs[0].NewValue)
	assert.Equal(t, "before", *logs[0].OldValue)
	assert.Equal(t, "after", *logs[0].NewValue)
	assert.Equal(t, "alice", logs[0].ChangedBy)

	var created []*entity.ChangeLog
	require.NoError(t, dc.DB().NewSelect().Model(&created).
		Where("entity_id = ?", n.ID).
		Where("column_name = ?", "created_on").
		Scan(ctx))
	assert.Empty(t, created, "unchanged columns are not logged")
}
