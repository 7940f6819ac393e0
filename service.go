/*
 * Copyright 2026 crudkit.
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

package crudkit

import (
	"context"
	"sync"

	"github.com/crudkit/crudkit/accessor"
	"github.com/crudkit/crudkit/database"
	"github.com/crudkit/crudkit/types"
)

// Service is the facade over one accessor specialization bound to the global
// database connection. T is the entity, C, U and F its create, update and
// filter payloads.
type Service[T, C, U, F any] interface {
	// Get returns a single entity by its identifier; absence is (nil, nil).
	Get(ctx context.Context, id any) (*T, error)

	// List returns entities matching the query's filter, offset and limit.
	List(ctx context.Context, q *accessor.Query[F]) ([]*T, error)

	// Page returns a paginated, counted list of entities.
	Page(ctx context.Context, page *types.PageRequest[F]) (*types.Pagination[T], error)

	// Create inserts a new entity from the payload and returns the stored row.
	Create(ctx context.Context, in *C) (*T, error)

	// Update assigns the payload's set fields onto the identified entity.
	Update(ctx context.Context, id any, in *U) (*T, error)

	// Delete removes the identified entity, returning its last state;
	// absence is (nil, nil).
	Delete(ctx context.Context, id any) (*T, error)

	// Async returns the suspending variant over the same binding and session.
	Async() (*accessor.AsyncAccessor[T, C, U, F], error)
}

type baseServiceImpl[T, C, U, F any] struct {
	idColumn string
	once     sync.Once
	acc      *accessor.Accessor[T, C, U, F]
	err      error
}

// NewService returns a Service for the (T, C, U, F) tuple using the global
// database connection, identifying entities by idColumn. The accessor is
// bound lazily on first use, so InitDB only has to happen before the first
// call, not before construction.
func NewService[T, C, U, F any](idColumn string) Service[T, C, U, F] {
	return &baseServiceImpl[T, C, U, F]{idColumn: idColumn}
}

func (s *baseServiceImpl[T, C, U, F]) base() (*accessor.Accessor[T, C, U, F], error) {
	s.once.Do(func() {
		var binding *accessor.Binding[T, C, U, F]
		if binding, s.err = accessor.Bind[T, C, U, F](); s.err != nil {
			return
		}
		s.acc, s.err = binding.NewAccessor(database.GetDB(), s.idColumn)
	})
	return s.acc, s.err
}

func (s *baseServiceImpl[T, C, U, F]) Get(ctx context.Context, id any) (*T, error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.ReadByID(ctx, id)
}

func (s *baseServiceImpl[T, C, U, F]) List(ctx context.Context, q *accessor.Query[F]) ([]*T, error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.Read(ctx, q)
}

func (s *baseServiceImpl[T, C, U, F]) Page(ctx context.Context, page *types.PageRequest[F]) (*types.Pagination[T], error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.ReadPage(ctx, page)
}

func (s *baseServiceImpl[T, C, U, F]) Create(ctx context.Context, in *C) (*T, error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.Create(ctx, in)
}

func (s *baseServiceImpl[T, C, U, F]) Update(ctx context.Context, id any, in *U) (*T, error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.Update(ctx, id, in)
}

func (s *baseServiceImpl[T, C, U, F]) Delete(ctx context.Context, id any) (*T, error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.Delete(ctx, id)
}

func (s *baseServiceImpl[T, C, U, F]) Async() (*accessor.AsyncAccessor[T, C, U, F], error) {
	acc, err := s.base()
	if err != nil {
		return nil, err
	}
	return acc.Async(), nil
}
