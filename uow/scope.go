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

package uow

import (
	"errors"
	"fmt"

	"github.com/tomoncle/nerv/repository"
	"github.com/tomoncle/nerv/types"
)

// UnitOfWorkFactory resolves units of work by context name.
type UnitOfWorkFactory interface {
	GetUnitOfWork(name string) (UnitOfWork, error)
	Close() error
}

// Scope is the UnitOfWorkFactory of one logical session. It carries the
// actor and hands out at most one open unit of work per context name.
type Scope struct {
	registry *Registry
	actor    any
	units    map[string]UnitOfWork
	closed   bool
}

var _ UnitOfWorkFactory = (*Scope)(nil)

// NewScope returns a scope over registry acting as actor, which is either
// an entity.Actor[U] or a bare user id of the context's user id type.
func NewScope(registry *Registry, actor any) *Scope {
	return &Scope{
		registry: registry,
		actor:    actor,
		units:    make(map[string]UnitOfWork),
	}
}

// GetUnitOfWork returns the unit of work of the named context, creating it
// on first use or after it was closed.
func (s *Scope) GetUnitOfWork(name string) (UnitOfWork, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: scope is closed", types.ErrInvalidOperation)
	}
	if u, ok := s.units[name]; ok && !u.Closed() {
		return u, nil
	}
	reg, err := s.registry.lookup(name)
	if err != nil {
		return nil, err
	}
	u, err := reg.newUnitOfWork(s.actor)
	if err != nil {
		return nil, err
	}
	s.units[name] = u
	return u, nil
}

// Close closes every open unit of work created by the scope.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, u := range s.units {
		if u.Closed() {
			continue
		}
		if err := u.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.units = nil
	return errors.Join(errs...)
}

// GetRepository returns the repository for T of the named context.
func GetRepository[T any](factory UnitOfWorkFactory, name string) (repository.Repository[T], error) {
	u, err := factory.GetUnitOfWork(name)
	if err != nil {
		return nil, err
	}
	return Repository[T](u)
}
