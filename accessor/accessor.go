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

package accessor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/crudkit/crudkit/database"
	"github.com/crudkit/crudkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
)

// Accessor executes create, read, update and delete operations for one bound
// entity type against a transactional session. The session is any bun.IDB:
// a *bun.DB for autocommitted statements or a bun.Tx to scope every
// operation to a caller-owned transaction. One accessor must not share a
// bun.Tx across concurrently in-flight operations; enforcing that is the
// caller's job.
//
// Every operation is a single unit of work with two terminal outcomes,
// committed or failed. Storage errors are wrapped and propagated verbatim;
// the accessor never retries.
type Accessor[T, C, U, F any] struct {
	binding *Binding[T, C, U, F]
	db      bun.IDB
	idField entityField
	logger  database.Logger
}

// Query carries the optional knobs of a collection read. A zero Limit means
// unbounded; a nil Filter matches everything.
type Query[F any] struct {
	Limit  int
	Offset int
	Filter *F
}

// NewAccessor constructs a ready-to-use accessor over the given session.
// idColumn must name a column of the bound entity; an unknown name is a
// configuration error.
func (b *Binding[T, C, U, F]) NewAccessor(db bun.IDB, idColumn string) (*Accessor[T, C, U, F], error) {
	idField, ok := b.entity.column(idColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no column %q", ErrUnknownIdentifier, b.entity.typ, idColumn)
	}
	return &Accessor[T, C, U, F]{
		binding: b,
		db:      db,
		idField: idField,
		logger:  database.GetLogger(),
	}, nil
}

// Create expands the payload onto a fresh entity, inserts it, and reloads
// the row so storage-generated values (identifier, timestamp defaults) are
// materialized in the returned entity.
func (a *Accessor[T, C, U, F]) Create(ctx context.Context, in *C) (*T, error) {
	entity := new(T)
	a.applyCreate(entity, in)
	a.logger.Debug("create: staging entity", "entity", a.binding.entity.typ.String())

	query := a.db.NewInsert().Model(entity)
	if a.db.Dialect().Features().Has(feature.Returning) {
		query = query.Returning("*")
	}
	if _, err := query.Exec(ctx); err != nil {
		a.logger.Error("create: insert failed", "entity", a.binding.entity.typ.String(), "error", err)
		return nil, fmt.Errorf("create %s: %w", a.binding.entity.typ, err)
	}

	id := a.identifierOf(entity)
	fresh, err := a.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, fmt.Errorf("create %s: inserted row with %s=%v not found on reload",
			a.binding.entity.typ, a.idField.column, id)
	}
	a.logger.Info("create: created entity", "entity", a.binding.entity.typ.String(), a.idField.column, id)
	return fresh, nil
}

// Read returns the entities matching q. Every set filter field that maps to
// an entity column becomes an equality predicate, or a membership predicate
// for slice fields; predicates are ANDed. Unset fields are skipped rather
// than translated to IS NULL, and filter fields unknown to the entity are
// ignored. No matches yields an empty slice, not an error.
func (a *Accessor[T, C, U, F]) Read(ctx context.Context, q *Query[F]) ([]*T, error) {
	a.logger.Debug("read: querying entities", "entity", a.binding.entity.typ.String())
	var entities []*T
	query := a.db.NewSelect().Model(&entities)
	if q != nil {
		if q.Filter != nil {
			query = applyPredicates(query, a.binding.filter.setValues(reflect.ValueOf(q.Filter).Elem()))
		}
		query = a.applyWindow(query, q.Limit, q.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		a.logger.Error("read: query failed", "entity", a.binding.entity.typ.String(), "error", err)
		return nil, fmt.Errorf("read %s: %w", a.binding.entity.typ, err)
	}
	a.logger.Info("read: retrieved entities", "entity", a.binding.entity.typ.String(), "count", len(entities))
	if entities == nil {
		entities = make([]*T, 0)
	}
	return entities, nil
}

// ReadByID returns the entity whose identifier column equals id. Absence is
// a valid outcome, reported as (nil, nil) and logged below error severity.
func (a *Accessor[T, C, U, F]) ReadByID(ctx context.Context, id any) (*T, error) {
	a.logger.Debug("read_by_id: querying entity", "entity", a.binding.entity.typ.String(), a.idField.column, id)
	entity := new(T)
	err := a.db.NewSelect().Model(entity).
		Where("? = ?", bun.Ident(a.idField.column), id).
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		a.logger.Warn("read_by_id: no entity", "entity", a.binding.entity.typ.String(), a.idField.column, id)
		return nil, nil
	case err != nil:
		a.logger.Error("read_by_id: query failed", "entity", a.binding.entity.typ.String(), "error", err)
		return nil, fmt.Errorf("read %s by %s=%v: %w", a.binding.entity.typ, a.idField.column, id, err)
	}
	return entity, nil
}

// Update assigns the payload's explicitly set fields onto the entity with
// the given identifier and returns the refreshed row. A missing target is
// ErrNotFound: unlike ReadByID and Delete, an update presumes its target
// exists. A payload with no set field that maps onto the entity is
// ErrNothingToUpdate, checked before any write happens.
func (a *Accessor[T, C, U, F]) Update(ctx context.Context, id any, in *U) (*T, error) {
	a.logger.Debug("update: staging changes", "entity", a.binding.entity.typ.String(), a.idField.column, id)
	values := a.binding.update.setValues(reflect.ValueOf(in).Elem())
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s with %s=%v", ErrNothingToUpdate, a.binding.entity.typ, a.idField.column, id)
	}

	current, err := a.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s with %s=%v", ErrNotFound, a.binding.entity.typ, a.idField.column, id)
	}

	query := a.db.NewUpdate().Model((*T)(nil)).
		Where("? = ?", bun.Ident(a.idField.column), id)
	for _, cv := range values {
		query = query.Set("? = ?", bun.Ident(cv.column), cv.value)
	}
	if _, err := query.Exec(ctx); err != nil {
		a.logger.Error("update: commit failed", "entity", a.binding.entity.typ.String(), a.idField.column, id, "error", err)
		return nil, fmt.Errorf("update %s with %s=%v: %w", a.binding.entity.typ, a.idField.column, id, err)
	}

	fresh, err := a.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.logger.Info("update: updated entity", "entity", a.binding.entity.typ.String(), a.idField.column, id, "fields", len(values))
	return fresh, nil
}

// Delete removes the entity with the given identifier and returns its state
// as it existed immediately before removal. A missing target returns
// (nil, nil): deleting something already gone is benign, asymmetric with
// Update on purpose.
func (a *Accessor[T, C, U, F]) Delete(ctx context.Context, id any) (*T, error) {
	a.logger.Debug("delete: staging removal", "entity", a.binding.entity.typ.String(), a.idField.column, id)
	snapshot, err := a.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	_, err = a.db.NewDelete().Model((*T)(nil)).
		Where("? = ?", bun.Ident(a.idField.column), id).
		Exec(ctx)
	if err != nil {
		a.logger.Error("delete: commit failed", "entity", a.binding.entity.typ.String(), a.idField.column, id, "error", err)
		return nil, fmt.Errorf("delete %s with %s=%v: %w", a.binding.entity.typ, a.idField.column, id, err)
	}
	a.logger.Info("delete: deleted entity", "entity", a.binding.entity.typ.String(), a.idField.column, id)
	return snapshot, nil
}

// ReadPage runs a filtered, ordered, counted page query and returns the page
// items with the total match count. A nil request reads the default first
// page, mirroring how Read treats a nil query.
func (a *Accessor[T, C, U, F]) ReadPage(ctx context.Context, page *types.PageRequest[F]) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest[F](1, 10)
	}
	a.logger.Debug("page: querying entities", "entity", a.binding.entity.typ.String(), "page", page.GetPage())
	var entities []*T
	query := a.db.NewSelect().Model(&entities)
	if f := page.GetFilter(); f != nil {
		query = applyPredicates(query, a.binding.filter.setValues(reflect.ValueOf(f).Elem()))
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", a.binding.entity.typ, err)
	}
	if total == 0 {
		return pagination, nil
	}
	err = query.
		Offset(page.GetOffset()).
		Limit(page.GetPageSize()).
		Order(page.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", a.binding.entity.typ, err)
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// applyCreate copies the payload's set fields onto a fresh entity, leaving
// unset optional fields at their zero value so column defaults apply.
func (a *Accessor[T, C, U, F]) applyCreate(entity *T, in *C) {
	ev := reflect.ValueOf(entity).Elem()
	pv := reflect.ValueOf(in).Elem()
	for _, pf := range a.binding.create.fields {
		if pf.entityIndex < 0 {
			continue
		}
		fv := pv.Field(pf.index)
		if (pf.optional || pf.multi) && fv.IsNil() {
			continue
		}
		if pf.optional {
			fv = fv.Elem()
		}
		target := ev.Field(pf.entityIndex)
		if target.Kind() == reflect.Pointer && fv.Kind() != reflect.Pointer {
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(fv.Convert(target.Type().Elem()))
			target.Set(p)
			continue
		}
		target.Set(fv.Convert(target.Type()))
	}
}

func (a *Accessor[T, C, U, F]) identifierOf(entity *T) any {
	return reflect.ValueOf(entity).Elem().Field(a.idField.index).Interface()
}

// applyWindow applies limit and offset, each independently optional. SQLite
// and MySQL reject OFFSET without LIMIT, so an offset-only window gets the
// dialect's unbounded limit.
func (a *Accessor[T, C, U, F]) applyWindow(query *bun.SelectQuery, limit, offset int) *bun.SelectQuery {
	if limit > 0 {
		query = query.Limit(limit)
	} else if offset > 0 {
		switch a.db.Dialect().Name() {
		case dialect.SQLite:
			query = query.Limit(-1)
		case dialect.MySQL:
			query = query.Limit(math.MaxInt32)
		}
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// applyPredicates ANDs one predicate per set filter value onto the query.
// Slice values become membership predicates; an explicitly set but empty
// slice can match nothing.
func applyPredicates(query *bun.SelectQuery, values []columnValue) *bun.SelectQuery {
	for _, cv := range values {
		if cv.multi {
			if reflect.ValueOf(cv.value).Len() == 0 {
				query = query.Where("1 = 0")
				continue
			}
			query = query.Where("? IN (?)", bun.Ident(cv.column), bun.In(cv.value))
			continue
		}
		query = query.Where("? = ?", bun.Ident(cv.column), cv.value)
	}
	return query
}
