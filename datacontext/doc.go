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

// Package datacontext is the seam between repositories and bun. A data
// context tracks pending inserts, updates and deletes, stamps audit fields,
// rewrites deletes of soft-deletable entities into updates, checks row
// versions and writes everything in one transaction on SaveChanges.
//
// Table names and standing filters are computed once per registered context
// by BuildModel and shared by every data context of that context.
package datacontext
