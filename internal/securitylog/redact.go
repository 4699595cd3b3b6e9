package securitylog

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// RedactedValue replaces the value of every sensitive detail key.
const RedactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"cookie",
	"session",
	"ssn",
	"creditcard",
	"bankaccount",
}

// IsSensitiveKey reports whether a detail key names confidential data.
func IsSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of details with every sensitive key's value
// replaced by RedactedValue, at any depth of nested maps, sequences, pointers
// and structs. The input is never modified.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	return copyMap(details, true, 0)
}

// cloneDetails deep-copies details without redacting.
func cloneDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	return copyMap(details, false, 0)
}

// maxRedactDepth bounds recursion so self-referencing pointers terminate.
const maxRedactDepth = 32

func copyMap(m map[string]any, redact bool, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if redact && IsSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = copyValue(v, redact, depth+1)
	}
	return out
}

func copyValue(v any, redact bool, depth int) any {
	if depth > maxRedactDepth {
		if redact {
			return RedactedValue
		}
		return v
	}
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int, int64, float64:
		return t
	case map[string]any:
		return copyMap(t, redact, depth)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			if redact && IsSensitiveKey(k) {
				s = RedactedValue
			}
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e, redact, depth+1)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = copyMap(e, redact, depth+1)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	case json.Marshaler, encoding.TextMarshaler:
		// time.Time, uuid.UUID and friends serialise themselves.
		return t
	}
	return copyReflect(reflect.ValueOf(v), redact, depth)
}

// copyReflect handles the remaining shapes. Map keys of any type are named
// by fmt.Sprint; structs become maps keyed by their json field names.
func copyReflect(rv reflect.Value, redact bool, depth int) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if !redact {
			return rv.Interface()
		}
		return copyValue(rv.Elem().Interface(), redact, depth+1)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			if redact && IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = copyValue(iter.Value().Interface(), redact, depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = copyValue(rv.Index(i).Interface(), redact, depth+1)
		}
		return out
	case reflect.Struct:
		if !redact {
			return rv.Interface()
		}
		return copyStruct(rv, depth)
	}
	return rv.Interface()
}

// copyStruct walks exported fields the way encoding/json names them.
// Embedded structs are flattened into the parent.
func copyStruct(rv reflect.Value, depth int) map[string]any {
	out := make(map[string]any, rv.NumField())
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		fv := rv.Field(i)
		if f.Anonymous && fv.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			for k, v := range copyStruct(fv, depth+1) {
				out[k] = v
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, skip := jsonFieldName(f)
		if skip {
			continue
		}
		if IsSensitiveKey(name) || IsSensitiveKey(f.Name) {
			out[name] = RedactedValue
			continue
		}
		out[name] = copyValue(fv.Interface(), true, depth+1)
	}
	return out
}

func jsonFieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, false
}
