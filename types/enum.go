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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// EntityState is the pending operation recorded for a tracked entity.
type EntityState int

const (
	Unchanged EntityState = iota
	Added
	Modified
	Deleted
)

var _ BaseEnum = Unchanged

var entityStateNames = map[EntityState][2]string{
	Unchanged: {"unchanged", "entity has no pending operation"},
	Added:     {"added", "entity will be inserted"},
	Modified:  {"modified", "entity will be updated"},
	Deleted:   {"deleted", "entity will be deleted"},
}

func (s EntityState) IsValid() bool {
	_, ok := entityStateNames[s]
	return ok
}

func (s EntityState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s EntityState) String() string { return s.Name() }

func (s EntityState) Name() string {
	if n, ok := entityStateNames[s]; ok {
		return n[0]
	}
	return IllegalName
}

func (s EntityState) Desc() string {
	if n, ok := entityStateNames[s]; ok {
		return n[1]
	}
	return IllegalDesc
}
