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

// Package entity declares the capabilities a model may opt into
// (identity, auditing, soft deletion, tenancy, row versioning) and
// base structs implementing them for embedding next to bun.BaseModel.
//
//	type User struct {
//		bun.BaseModel `bun:"table:user,alias:u"`
//		entity.DeletableBase[string, string]
//		Name string `bun:"name,notnull"`
//	}
//
// The data context detects capabilities by type assertion, so a model
// gets audit stamping or the soft-delete filter simply by embedding the
// matching base struct or implementing the interface itself.
//
// Base leaves key assignment to the caller; IntBase and IntDeletableBase
// map an auto-increment int64 key that the database fills in on insert.
package entity
