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
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/uptrace/bun"
)

// Binding is a specialization of the generic accessor for one concrete
// 4-tuple of types: the entity, its create payload, its update payload, and
// its filter payload. Field descriptors are computed once at bind time so the
// per-operation code never reflects over struct tags again.
//
// Bindings carry no database handle and are safe for concurrent use; any
// number of accessors can be constructed from one binding.
type Binding[T, C, U, F any] struct {
	entity *entityDescriptor
	create *payloadDescriptor
	update *payloadDescriptor
	filter *payloadDescriptor
}

type bindingKey [4]reflect.Type

// bindings memoizes specializations by the identity of their type 4-tuple.
// The original design used a weakly-keyed cache; a plain map is enough here
// because bindings are small and the set of tuples is fixed at compile time.
var bindings sync.Map

// Bind returns the specialization for the (T, C, U, F) tuple, creating and
// caching it on first use. Binding twice with the same tuple returns the
// same *Binding; a different tuple yields a distinct one.
//
// T must be a struct with at least one mappable column. C, U and F must be
// struct types whose fields resolve against T's columns (see resolve rules
// on payloadDescriptor). Violations surface as ErrInvalidEntityType or
// ErrInvalidPayloadType.
func Bind[T, C, U, F any]() (*Binding[T, C, U, F], error) {
	key := bindingKey{
		reflect.TypeFor[T](),
		reflect.TypeFor[C](),
		reflect.TypeFor[U](),
		reflect.TypeFor[F](),
	}
	if cached, ok := bindings.Load(key); ok {
		return cached.(*Binding[T, C, U, F]), nil
	}

	entity, err := describeEntity(key[0])
	if err != nil {
		return nil, err
	}
	b := &Binding[T, C, U, F]{entity: entity}
	if b.create, err = describePayload(key[1], "create", entity); err != nil {
		return nil, err
	}
	if b.update, err = describePayload(key[2], "update", entity); err != nil {
		return nil, err
	}
	if b.filter, err = describePayload(key[3], "filter", entity); err != nil {
		return nil, err
	}

	cached, _ := bindings.LoadOrStore(key, b)
	return cached.(*Binding[T, C, U, F]), nil
}

// MustBind is Bind for package-level variables; it panics on invalid tuples.
func MustBind[T, C, U, F any]() *Binding[T, C, U, F] {
	b, err := Bind[T, C, U, F]()
	if err != nil {
		panic(err)
	}
	return b
}

// entityDescriptor lists the mappable columns of one entity struct.
type entityDescriptor struct {
	typ      reflect.Type
	fields   []entityField
	byColumn map[string]int // column name -> index into fields
	byGoName map[string]int // struct field name -> index into fields
}

type entityField struct {
	column string
	index  int // struct field index on the entity
	typ    reflect.Type
}

func (d *entityDescriptor) column(name string) (entityField, bool) {
	i, ok := d.byColumn[name]
	if !ok {
		return entityField{}, false
	}
	return d.fields[i], true
}

var baseModelType = reflect.TypeFor[bun.BaseModel]()

func describeEntity(typ reflect.Type) (*entityDescriptor, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidEntityType, typ, typ.Kind())
	}
	d := &entityDescriptor{
		typ:      typ,
		byColumn: make(map[string]int),
		byGoName: make(map[string]int),
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Type == baseModelType || !f.IsExported() {
			continue
		}
		column, ok := columnName(f)
		if !ok {
			continue
		}
		d.byColumn[column] = len(d.fields)
		d.byGoName[f.Name] = len(d.fields)
		d.fields = append(d.fields, entityField{column: column, index: i, typ: f.Type})
	}
	if len(d.fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no mappable columns", ErrInvalidEntityType, typ)
	}
	return d, nil
}

// columnName resolves the column a struct field maps to, following bun tag
// conventions: first tag segment names the column, empty means the
// underscored Go name, "-" and relation fields are skipped.
func columnName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("bun")
	if tag == "-" || strings.Contains(tag, "rel:") || strings.HasPrefix(tag, "table:") {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = underscore(f.Name)
	}
	return name, true
}

// underscore converts a Go field name to its snake_case column form, the
// same default bun applies ("FullName" -> "full_name", "ID" -> "id").
func underscore(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// payloadDescriptor maps the fields of one payload struct onto entity
// columns. Fields resolve by bun tag first, then by Go name against the
// entity's fields; fields matching no column are kept but marked unmapped
// and silently skipped at runtime.
type payloadDescriptor struct {
	typ    reflect.Type
	role   string // "create", "update" or "filter"
	fields []payloadField
}

type payloadField struct {
	goName      string
	column      string // "" when the field maps to no entity column
	index       int    // struct field index on the payload
	entityIndex int    // struct field index on the entity, -1 when unmapped
	optional    bool   // pointer field, nil means unset
	multi       bool   // slice field, translates to a membership predicate
}

func describePayload(typ reflect.Type, role string, entity *entityDescriptor) (*payloadDescriptor, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s payload %s is a %s", ErrInvalidPayloadType, role, typ, typ.Kind())
	}
	d := &payloadDescriptor{typ: typ, role: role}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		pf := payloadField{goName: f.Name, index: i, entityIndex: -1}

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			pf.optional = true
			ft = ft.Elem()
		} else if ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8 {
			pf.multi = true
		}

		ef, ok := d.resolve(f, entity)
		if ok {
			pf.column = ef.column
			pf.entityIndex = ef.index
			// Create payloads write straight onto the entity, so their value
			// types must fit the entity field (possibly behind a pointer for
			// nullable columns). Slice fields included: a slice only fits a
			// slice-typed column.
			if role == "create" && !fits(ft, ef.typ) {
				return nil, fmt.Errorf("%w: %s.%s (%s) does not fit entity column %q (%s)",
					ErrInvalidPayloadType, typ, f.Name, ft, ef.column, ef.typ)
			}
		}
		d.fields = append(d.fields, pf)
	}
	return d, nil
}

func fits(from, to reflect.Type) bool {
	if to.Kind() == reflect.Pointer {
		to = to.Elem()
	}
	return from.AssignableTo(to) || from.ConvertibleTo(to)
}

func (d *payloadDescriptor) resolve(f reflect.StructField, entity *entityDescriptor) (entityField, bool) {
	if tag := f.Tag.Get("bun"); tag != "" && tag != "-" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return entity.column(name)
		}
	}
	if i, ok := entity.byGoName[f.Name]; ok {
		return entity.fields[i], true
	}
	return entity.column(underscore(f.Name))
}

// setValues walks a payload instance and returns the (column, value) pairs
// of every explicitly set field that maps onto the entity. Nil pointers and
// nil slices are unset and skipped; set pointers are dereferenced.
func (d *payloadDescriptor) setValues(payload reflect.Value) []columnValue {
	var out []columnValue
	for _, pf := range d.fields {
		if pf.entityIndex < 0 {
			continue
		}
		fv := payload.Field(pf.index)
		switch {
		case pf.optional:
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		case pf.multi:
			if fv.IsNil() {
				continue
			}
		}
		out = append(out, columnValue{column: pf.column, value: fv.Interface(), multi: pf.multi})
	}
	return out
}

type columnValue struct {
	column string
	value  any
	multi  bool
}
