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
	"fmt"
	"reflect"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/entity"
	"github.com/tomoncle/nerv/types"
)

const (
	isDeletedColumn  = "is_deleted"
	rowVersionColumn = "row_version"
)

var (
	baseModelType     = reflect.TypeOf(bun.BaseModel{})
	softDeletableType = reflect.TypeOf((*entity.SoftDeletable)(nil)).Elem()
	versionedType     = reflect.TypeOf((*entity.Versioned)(nil)).Elem()
	changeLogType     = reflect.TypeOf(entity.ChangeLog{})
)

// TableInfo is the mapping of one registered entity type.
type TableInfo struct {
	Type       reflect.Type
	Name       string
	Alias      string
	SoftDelete bool
	Versioned  bool

	table *schema.Table
}

// TableExpr renders "name AS alias" for select, update and delete queries.
func (t *TableInfo) TableExpr() (string, []interface{}) {
	return "? AS ?", []interface{}{bun.Ident(t.Name), bun.Ident(t.Alias)}
}

// Model is the immutable mapping of a persistence context: table names,
// aliases and the types that carry the soft-delete standing filter.
type Model struct {
	tables    map[reflect.Type]*TableInfo
	order     []*TableInfo
	changeLog *TableInfo
	registry  database.ModelRegistry
}

// BuildModel maps models, given as typed nil pointers such as (*User)(nil),
// onto tables of db. Models with audit setters must implement
// entity.Auditable[U]. Soft-deletable models must implement
// entity.DeletableAuditable[U] and map an is_deleted column.
func BuildModel[U any](db *bun.DB, opts Options, models ...interface{}) (*Model, error) {
	m := &Model{
		tables:   make(map[reflect.Type]*TableInfo, len(models)),
		registry: database.NewModelRegistry(),
	}
	userType := reflect.TypeOf((*U)(nil)).Elem()
	auditableType := reflect.TypeOf((*entity.Auditable[U])(nil)).Elem()
	deletableType := reflect.TypeOf((*entity.DeletableAuditable[U])(nil)).Elem()

	for i, model := range models {
		typ, err := structType(model)
		if err != nil {
			return nil, err
		}
		if _, ok := m.tables[typ]; ok {
			return nil, fmt.Errorf("%w: model %s registered twice", types.ErrInvalidOperation, typ)
		}
		info := newTableInfo(db, typ, opts.UsePluralization)
		ptr := reflect.PointerTo(typ)

		if _, ok := ptr.MethodByName("SetCreated"); ok && !ptr.Implements(auditableType) {
			return nil, fmt.Errorf("%w: %s is auditable but does not implement Auditable[%s]",
				types.ErrInvalidOperation, typ, userType)
		}
		if ptr.Implements(softDeletableType) {
			if !ptr.Implements(deletableType) {
				return nil, fmt.Errorf("%w: %s is soft-deletable but does not implement DeletableAuditable[%s]",
					types.ErrInvalidOperation, typ, userType)
			}
			if _, ok := info.table.FieldMap[isDeletedColumn]; !ok {
				return nil, fmt.Errorf("%w: %s has no %s column", types.ErrInvalidOperation, typ, isDeletedColumn)
			}
			info.SoftDelete = true
		}
		if ptr.Implements(versionedType) {
			if _, ok := info.table.FieldMap[rowVersionColumn]; !ok {
				return nil, fmt.Errorf("%w: %s has no %s column", types.ErrInvalidOperation, typ, rowVersionColumn)
			}
			info.Versioned = true
		}

		m.tables[typ] = info
		m.order = append(m.order, info)
		m.registry.Register(database.NewModelAdapter(model, info.Name, i, info.indexes()...))
	}

	if opts.EnableChangeLog {
		info := newTableInfo(db, changeLogType, false)
		m.changeLog = info
		m.registry.Register(database.NewModelAdapter((*entity.ChangeLog)(nil), info.Name, len(models),
			database.IndexSpec{Name: info.Name + "_entity_idx", Columns: []string{"table_name", "entity_id"}}))
	}
	return m, nil
}

func newTableInfo(db *bun.DB, typ reflect.Type, plural bool) *TableInfo {
	table := db.Table(typ)
	name := underscore(typ.Name())
	switch {
	case hasTableTag(typ):
		name = table.Name
	case plural:
		name = inflection.Plural(name)
	}
	return &TableInfo{
		Type:  typ,
		Name:  name,
		Alias: table.Alias,
		table: table,
	}
}

// PKColumn returns the first primary key column.
func (t *TableInfo) PKColumn() string {
	if len(t.table.PKs) == 0 {
		return "id"
	}
	return t.table.PKs[0].Name
}

func (t *TableInfo) indexes() []database.IndexSpec {
	if !t.SoftDelete {
		return nil
	}
	return []database.IndexSpec{{Name: t.Name + "_" + isDeletedColumn + "_idx", Columns: []string{isDeletedColumn}}}
}

// Table returns the mapping for model, which may be a struct, a pointer to
// one, or a slice of either.
func (m *Model) Table(model interface{}) (*TableInfo, bool) {
	typ := indirectType(reflect.TypeOf(model))
	if typ == nil {
		return nil, false
	}
	info, ok := m.tables[typ]
	return info, ok
}

// Tables returns the registered mappings in registration order.
func (m *Model) Tables() []*TableInfo {
	out := make([]*TableInfo, len(m.order))
	copy(out, m.order)
	return out
}

// ChangeLogEnabled reports whether updates are recorded in the change log.
func (m *Model) ChangeLogEnabled() bool { return m.changeLog != nil }

// Registry exposes the tables to create on migration.
func (m *Model) Registry() database.ModelRegistry { return m.registry }

func structType(model interface{}) (reflect.Type, error) {
	typ := reflect.TypeOf(model)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: model must be a pointer to struct, got %T", types.ErrInvalidArgument, model)
	}
	return typ.Elem(), nil
}

func indirectType(typ reflect.Type) reflect.Type {
	for typ != nil {
		switch typ.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			typ = typ.Elem()
		case reflect.Struct:
			return typ
		default:
			return nil
		}
	}
	return nil
}

func hasTableTag(typ reflect.Type) bool {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Type != baseModelType {
			continue
		}
		for _, opt := range strings.Split(f.Tag.Get("bun"), ",") {
			if strings.HasPrefix(opt, "table:") && len(opt) > len("table:") {
				return true
			}
		}
	}
	return false
}

// underscore converts a Go type name to snake case: UserAccount -> user_account.
func underscore(s string) string {
	b := make([]byte, 0, len(s)+5)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) {
			if i > 0 && (isLower(s[i-1]) || (i+1 < len(s) && isLower(s[i+1]))) {
				b = append(b, '_')
			}
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
