package kvstore

import (
	"fmt"
	"reflect"
)

// fieldValue dereferences ptr (which must be a pointer to a struct, or a
// struct) and returns the reflect.Value of the named field. Schemas are a
// closed, hand-declared set (see the record types in internal/records), so
// a field name that doesn't resolve is a programming error worth a panic
// rather than a silent zero value.
func fieldValue(rec any, field string) reflect.Value {
	v := reflect.ValueOf(rec)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	f := v.FieldByName(field)
	if !f.IsValid() {
		panic(fmt.Sprintf("kvstore: field %q not found on %T", field, rec))
	}
	return f
}

// stringField returns the string form of a field, regardless of its
// underlying kind, so indexed fields can be typed as strings, ints, or
// floats in the record struct.
func stringField(rec any, field string) string {
	f := fieldValue(rec, field)
	switch f.Kind() {
	case reflect.String:
		return f.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", f.Int())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%g", f.Float())
	case reflect.Bool:
		return fmt.Sprintf("%t", f.Bool())
	default:
		return fmt.Sprintf("%v", f.Interface())
	}
}

// floatField returns the numeric form of a sorted field.
func floatField(rec any, field string) float64 {
	f := fieldValue(rec, field)
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return f.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(f.Int())
	default:
		return 0
	}
}

// setStringField assigns a string-kinded field (used to populate an
// auto-generated id on Create).
func setStringField(rec any, field, value string) {
	f := fieldValue(rec, field)
	if f.CanSet() && f.Kind() == reflect.String {
		f.SetString(value)
	}
}
