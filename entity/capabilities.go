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

// Entity is a model with a primary key.
type Entity[TId comparable] interface {
	GetID() TId
}

// Audit is a snapshot of the audit fields of an Auditable entity.
type Audit[U any] struct {
	CreatedOn time.Time
	CreatedBy *U
	UpdatedOn *time.Time
	UpdatedBy *U
}

// Auditable entities are stamped with creation and update metadata on save.
type Auditable[U any] interface {
	SetCreated(on time.Time, by U)
	SetUpdated(on time.Time, by U)
	AuditInfo() Audit[U]
}

// DeletableAuditable entities are never physically deleted. Removal is
// rewritten to an update setting the deletion markers, and queries hide
// rows whose marker is set.
type DeletableAuditable[U any] interface {
	Auditable[U]
	MarkDeleted(on time.Time, by U)
	IsSoftDeleted() bool
}

// TenantScoped entities belong to a tenant.
type TenantScoped[TT comparable] interface {
	GetTenantID() TT
}

// Versioned entities carry an optimistic concurrency token that is
// checked and bumped on every update.
type Versioned interface {
	GetRowVersion() int64
	SetRowVersion(v int64)
}

// SoftDeletable is the non-generic view of DeletableAuditable, used where
// the user id type is not known.
type SoftDeletable interface {
	IsSoftDeleted() bool
}
