package postgres

import (
	"reflect"
	"sync"
)

// column is a db-tagged field addressed by its index path, so fields promoted
// from embedded structs (refdata.Product inside ProductWithStock) are reached
// directly.
type column struct {
	name  string
	index []int
}

// columnCache maps reflect.Type to []column.
var columnCache sync.Map

func columnsOf(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	if t.Kind() == reflect.Struct {
		cols = collectColumns(t, nil)
	}
	columnCache.Store(t, cols)
	return cols
}

func collectColumns(t reflect.Type, prefix []int) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous {
			if f.Type.Kind() == reflect.Struct {
				cols = append(cols, collectColumns(f.Type, index)...)
			}
			continue
		}

		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			cols = append(cols, column{name: tag, index: index})
		}
	}
	return cols
}

// ExtractDBColumns lists T's column names in field order, embedded structs inline.
//
//	ExtractDBColumns[inventory.Snapshot]()
//	// ["session_id", "product_id", "stock_start", "unit_cost"]
func ExtractDBColumns[T any]() []string {
	cols := columnsOf(reflect.TypeFor[T]())
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// StructToMap maps column name to value for a row struct (or pointer to one),
// ready for squirrel SetMap. It returns nil for non-struct values.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	res := make(map[string]any, len(cols))
	for _, c := range cols {
		res[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return res
}

// RowValues returns v's values in the given column order, as COPY and
// multi-row VALUES need them. Unknown columns yield nil.
func RowValues(v any, columns []string) []any {
	m := StructToMap(v)
	vals := make([]any, len(columns))
	for i, c := range columns {
		vals[i] = m[c]
	}
	return vals
}
