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
	"time"

	"github.com/tomoncle/nerv/database"
)

// Options configure a persistence context. The zero value disables
// pluralization, use DefaultOptions for the usual settings.
type Options struct {
	// UsePluralization names tables after the plural of the model name
	// ("user_accounts" for UserAccount). It only affects models without an
	// explicit bun table tag and is applied when the model is built.
	UsePluralization bool `json:"use_pluralization" yaml:"use_pluralization"`
	// EnableChangeLog records every changed column of updated entities.
	EnableChangeLog bool `json:"enable_change_log" yaml:"enable_change_log"`

	Clock  func() time.Time `json:"-" yaml:"-"`
	Logger database.Logger  `json:"-" yaml:"-"`
	// Migrations are versioned steps run once, after table creation.
	Migrations []database.MigrationItem `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{UsePluralization: true}
}

func (o Options) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func (o Options) logger() database.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return database.GetLogger()
}
