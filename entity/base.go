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

package entity

import "time"

// AuditFields holds the creation and update stamps. It is embedded by the
// base structs and rarely used directly.
type AuditFields[U any] struct {
	CreatedOn time.Time  `bun:"created_on,notnull" json:"created_on"`
	CreatedBy *U         `bun:"created_by" json:"created_by,omitempty"`
	UpdatedOn *time.Time `bun:"updated_on" json:"updated_on,omitempty"`
	UpdatedBy *U         `bun:"updated_by" json:"updated_by,omitempty"`
}

func (a *AuditFields[U]) SetCreated(on time.Time, by U) {
	a.CreatedOn = on
	a.CreatedBy = &by
}

func (a *AuditFields[U]) SetUpdated(on time.Time, by U) {
	a.UpdatedOn = &on
	a.UpdatedBy = &by
}

func (a *AuditFields[U]) AuditInfo() Audit[U] {
	return Audit[U]{
		CreatedOn: a.CreatedOn,
		CreatedBy: a.CreatedBy,
		UpdatedOn: a.UpdatedOn,
		UpdatedBy: a.UpdatedBy,
	}
}

// DeletionFields holds the soft deletion markers.
// IsDeleted implies DeletedOn and DeletedBy are set.
type DeletionFields[U any] struct {
	IsDeleted bool       `bun:"is_deleted,notnull" json:"is_deleted"`
	DeletedOn *time.Time `bun:"deleted_on" json:"deleted_on,omitempty"`
	DeletedBy *U         `bun:"deleted_by" json:"deleted_by,omitempty"`
}

func (d *DeletionFields[U]) MarkDeleted(on time.Time, by U) {
	d.IsDeleted = true
	d.DeletedOn = &on
	d.DeletedBy = &by
}

func (d *DeletionFields[U]) IsSoftDeleted() bool { return d.IsDeleted }

// Base carries a caller-assigned primary key and the audit fields.
// Use IntBase for keys generated by the database.
type Base[TId comparable, U any] struct {
	ID TId `bun:"id,pk" json:"id"`
	AuditFields[U]
}

func (b Base[TId, U]) GetID() TId { return b.ID }

// IntBase carries an auto-increment int64 primary key and the audit fields.
// A zero ID is left to the database and filled in on insert.
type IntBase[U any] struct {
	ID int64 `bun:"id,pk,autoincrement" json:"id"`
	AuditFields[U]
}

func (b IntBase[U]) GetID() int64 { return b.ID }

// DeletableBase adds soft deletion markers to Base.
type DeletableBase[TId comparable, U any] struct {
	Base[TId, U]
	DeletionFields[U]
}

// IntDeletableBase adds soft deletion markers to IntBase.
type IntDeletableBase[U any] struct {
	IntBase[U]
	DeletionFields[U]
}

// TenantBase adds a tenant id to Base.
type TenantBase[TId comparable, U any, TT comparable] struct {
	Base[TId, U]
	TenantID TT `bun:"tenant_id,notnull" json:"tenant_id"`
}

func (t TenantBase[TId, U, TT]) GetTenantID() TT { return t.TenantID }

// VersionedBase adds an optimistic concurrency token to Base.
type VersionedBase[TId comparable, U any] struct {
	Base[TId, U]
	RowVersion int64 `bun:"row_version,notnull" json:"row_version"`
}

func (v *VersionedBase[TId, U]) GetRowVersion() int64 { return v.RowVersion }

func (v *VersionedBase[TId, U]) SetRowVersion(n int64) { v.RowVersion = n }
