package value

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// Same is reference identity: containers are the same when they share
// backing storage, leaves when they are ==.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return false
}

var equalOpts = []cmp.Option{
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Equal is structural equality over the value model and arbitrary user
// structs.
func Equal(a, b any) bool {
	if Same(a, b) {
		return true
	}
	return cmp.Equal(a, b, equalOpts...)
}

func identity(v any) (uintptr, bool) {
	switch v.(type) {
	case map[string]any, Map, *Set:
		return reflect.ValueOf(v).Pointer(), true
	case []any:
		rv := reflect.ValueOf(v)
		if rv.Cap() == 0 {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}
