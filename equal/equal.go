// Package equal implements the identity and shallow comparisons used for
// per-slice dirty checking.
//
// Same treats reference types (maps, slices, pointers, channels, funcs) as
// equal only when they share the same underlying storage, and value types as
// equal when they compare ==, without ever panicking on non-comparable
// dynamic types. Shallow additionally looks one level into maps, slices,
// and pointed-to structs, comparing their elements with Same.
package equal

import "reflect"

// Same reports whether a and b are identical: the same reference for
// reference types, equal values for everything else.
func Same(a, b any) bool {
	return same(reflect.ValueOf(a), reflect.ValueOf(b))
}

// Shallow reports whether a and b are Same, or are maps, slices, arrays,
// structs, or pointers to structs whose direct elements are pairwise Same.
func Shallow(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if same(va, vb) {
		return true
	}
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map:
		if va.IsNil() != vb.IsNil() || va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !same(iter.Value(), other) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if va.IsNil() != vb.IsNil() {
			return false
		}
		return elementsSame(va, vb)
	case reflect.Pointer:
		if va.IsNil() || vb.IsNil() || va.Elem().Kind() != reflect.Struct {
			return false
		}
		return same(va.Elem(), vb.Elem())
	}

	return false
}

func same(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	switch a.Kind() {
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return same(a.Elem(), b.Elem())
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		return a.Len() == b.Len() && a.Pointer() == b.Pointer()
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() == b.Float()
	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == b.Complex()
	case reflect.String:
		return a.String() == b.String()
	case reflect.Array:
		return elementsSame(a, b)
	case reflect.Struct:
		for i := range a.NumField() {
			if !same(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	}

	return false
}

func elementsSame(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Len() {
		if !same(a.Index(i), b.Index(i)) {
			return false
		}
	}
	return true
}
