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

// Package uow groups the repositories of one persistence context behind a
// unit of work and resolves units of work by context name.
//
// A Registry is built once at configuration time:
//
//	reg, err := uow.NewRegistry(
//		uow.Context[string]("Blog", db, datacontext.DefaultOptions(), (*Post)(nil), (*Comment)(nil)),
//	)
//
// and a Scope is created per logical session, carrying the acting user:
//
//	scope := uow.NewScope(reg, entity.NewActor("alice"))
//	defer scope.Close()
//
//	posts, err := uow.GetRepository[Post](scope, "Blog")
//	...
//	u, _ := scope.GetUnitOfWork("Blog")
//	_, err = u.SaveChanges(ctx)
//
// Units of work are single-session values and must not be shared between
// goroutines.
package uow
