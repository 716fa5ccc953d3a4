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

import (
	"time"

	"github.com/uptrace/bun"
)

// ChangeLog records one changed column of an updated entity.
type ChangeLog struct {
	bun.BaseModel `bun:"table:change_logs,alias:cl"`

	ID        string    `bun:"id,pk" json:"id"`
	Table     string    `bun:"table_name,notnull" json:"table"`
	EntityID  string    `bun:"entity_id,notnull" json:"entity_id"`
	Column    string    `bun:"column_name,notnull" json:"column"`
	OldValue  *string   `bun:"old_value" json:"old_value,omitempty"`
	NewValue  *string   `bun:"new_value" json:"new_value,omitempty"`
	ChangedBy string    `bun:"changed_by" json:"changed_by"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
}
