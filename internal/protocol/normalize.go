package protocol

import (
	"math"
	"strconv"
	"strings"
)

// Normalize converts a decoded body into a field mapping.
//
//   - an anonymous *Object is returned unchanged
//   - a typed *Object is flattened; a nested "body" mapping is merged
//     underneath the outer fields and the "body" key dropped
//   - a *List becomes {status: first item} ({status: null} when empty)
//   - nil, Null and Undefined become an empty mapping
//   - any other scalar becomes {status: value}
func Normalize(v Value) *Object {
	switch val := v.(type) {
	case *Object:
		if val == nil {
			return NewObject()
		}
		if !val.IsTyped() {
			return val
		}
		return flatten(val)
	case *List:
		out := NewObject()
		if val.Len() == 0 {
			return out.Set("status", Null{})
		}
		return out.Set("status", val.Items[0])
	case nil, Null, Undefined:
		return NewObject()
	default:
		return NewObject().Set("status", v)
	}
}

func flatten(o *Object) *Object {
	out := NewObject()
	merged := false
	if body, ok := o.Get("body"); ok {
		if inner, ok := body.(*Object); ok && inner != nil {
			for _, k := range inner.keys {
				out.Set(k, inner.fields[k])
			}
			merged = true
		}
	}
	for _, k := range o.keys {
		if merged && k == "body" {
			continue
		}
		out.Set(k, o.fields[k])
	}
	return out
}

// Lookup returns the value of the first candidate key that is present and
// not null.
func Lookup(o *Object, keys ...string) (Value, bool) {
	for _, k := range keys {
		v, ok := o.Get(k)
		if !ok {
			continue
		}
		switch v.(type) {
		case Null, Undefined:
			continue
		}
		return v, true
	}
	return nil, false
}

// IntField returns the first candidate key coercible to an integer.
func IntField(o *Object, keys ...string) (int64, bool) {
	v, ok := Lookup(o, keys...)
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// StringField returns the first candidate key as a string.
func StringField(o *Object, keys ...string) (string, bool) {
	v, ok := Lookup(o, keys...)
	if !ok {
		return "", false
	}
	return AsString(v)
}

// BoolField returns the first candidate key as a boolean.
func BoolField(o *Object, keys ...string) (bool, bool) {
	v, ok := Lookup(o, keys...)
	if !ok {
		return false, false
	}
	return AsBool(v)
}

// ListField returns the first candidate key holding a list.
func ListField(o *Object, keys ...string) (*List, bool) {
	v, ok := Lookup(o, keys...)
	if !ok {
		return nil, false
	}
	l, ok := v.(*List)
	return l, ok && l != nil
}

// ObjectField returns the first candidate key holding a mapping.
func ObjectField(o *Object, keys ...string) (*Object, bool) {
	v, ok := Lookup(o, keys...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok && obj != nil
}

// AsInt coerces integers, finite doubles (truncated), booleans and numeric
// strings.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Double:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	case String:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsString renders strings and numbers as text.
func AsString(v Value) (string, bool) {
	switch val := v.(type) {
	case String:
		return string(val), true
	case XML:
		return string(val), true
	case Int:
		return strconv.FormatInt(int64(val), 10), true
	case Double:
		return strconv.FormatFloat(float64(val), 'f', -1, 64), true
	case Bool:
		return strconv.FormatBool(bool(val)), true
	default:
		return "", false
	}
}

// AsBool coerces booleans, non-zero numbers and "true"/"1" strings.
func AsBool(v Value) (bool, bool) {
	switch val := v.(type) {
	case Bool:
		return bool(val), true
	case Int:
		return val != 0, true
	case Double:
		return val != 0, true
	case String:
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no", "":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// Items returns the elements of a list value, or nil for anything else.
func Items(v Value) []Value {
	if l, ok := v.(*List); ok && l != nil {
		return l.Items
	}
	return nil
}
