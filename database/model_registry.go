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
	"sort"
	"sync"
)

// SQLModel represents a table created by the migration manager.
// Instance returns a struct pointer compatible with bun, Priority orders
// creation (lower values first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
	TableName() string
	Indexes() []IndexSpec
}

// IndexSpec is a secondary index created together with its table.
type IndexSpec struct {
	Name    string
	Columns []string
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

func NewModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
	}
}

func (r *modelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

type ModelAdapter struct {
	instance interface{}
	priority int
	table    string
	indexes  []IndexSpec
}

// NewModelAdapter wraps a struct instance, its table name and priority into
// an SQLModel.
func NewModelAdapter(instance interface{}, table string, priority int, indexes ...IndexSpec) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
		table:    table,
		indexes:  indexes,
	}
}

func (a *ModelAdapter) Instance() interface{} { return a.instance }

func (a *ModelAdapter) Priority() int { return a.priority }

func (a *ModelAdapter) TableName() string { return a.table }

func (a *ModelAdapter) Indexes() []IndexSpec { return a.indexes }
