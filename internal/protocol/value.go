package protocol

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindDouble
	KindString
	KindBytes
	KindDate
	KindXML
	KindList
	KindObject
)

var kindStrings = map[Kind]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "bool",
	KindInt:       "int",
	KindDouble:    "double",
	KindString:    "string",
	KindBytes:     "bytes",
	KindDate:      "date",
	KindXML:       "xml",
	KindList:      "list",
	KindObject:    "object",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// Value is a decoded or to-be-encoded protocol value. The set of
// implementations is closed to this package.
type Value interface {
	Kind() Kind
	sealed()
}

type (
	// Undefined is the AMF undefined marker.
	Undefined struct{}
	// Null is the AMF null marker.
	Null struct{}
	// Bool is a boolean value.
	Bool bool
	// Int is an AMF3 29-bit signed integer.
	Int int32
	// Double is an IEEE-754 number.
	Double float64
	// String is a UTF-8 string.
	String string
	// Bytes is an AMF3 ByteArray.
	Bytes []byte
	// XML is an XML document carried as text.
	XML string
	// Date is a point in time with millisecond precision.
	Date struct{ time.Time }
)

func (Undefined) Kind() Kind { return KindUndefined }
func (Null) Kind() Kind      { return KindNull }
func (Bool) Kind() Kind      { return KindBool }
func (Int) Kind() Kind       { return KindInt }
func (Double) Kind() Kind    { return KindDouble }
func (String) Kind() Kind    { return KindString }
func (Bytes) Kind() Kind     { return KindBytes }
func (XML) Kind() Kind       { return KindXML }
func (Date) Kind() Kind      { return KindDate }
func (*List) Kind() Kind     { return KindList }
func (*Object) Kind() Kind   { return KindObject }

func (Undefined) sealed() {}
func (Null) sealed()      {}
func (Bool) sealed()      {}
func (Int) sealed()       {}
func (Double) sealed()    {}
func (String) sealed()    {}
func (Bytes) sealed()     {}
func (XML) sealed()       {}
func (Date) sealed()      {}
func (*List) sealed()     {}
func (*Object) sealed()   {}

// List is an ordered sequence. Lists decoded from a single envelope that were
// sent as back-references share the same pointer.
type List struct {
	Items []Value
}

// NewList builds a list from values.
func NewList(items ...Value) *List {
	return &List{Items: items}
}

// Len returns the number of items.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

// Object is an ordered field mapping. A non-empty ClassName marks a typed
// record as sent by the server for registered classes.
type Object struct {
	ClassName string

	keys   []string
	fields map[string]Value
}

// NewObject creates an empty anonymous object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// NewTypedObject creates an empty object with a class name.
func NewTypedObject(className string) *Object {
	o := NewObject()
	o.ClassName = className
	return o
}

// Set stores a field, keeping first-insertion order.
func (o *Object) Set(key string, v Value) *Object {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if v == nil {
		v = Null{}
	}
	if _, exists := o.fields[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return o
}

// Get returns a field and whether it exists.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// IsTyped reports whether the object carries a class name.
func (o *Object) IsTyped() bool {
	return o != nil && o.ClassName != ""
}

// FromGo converts native Go values into protocol values. Maps are encoded
// with sorted keys so the output is deterministic.
//
// Supported: nil, Value, bool, string, []byte, int family, uint family,
// float32/64, time.Time, []any, []string, []int, map[string]any.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case int:
		return intValue(int64(val)), nil
	case int8:
		return intValue(int64(val)), nil
	case int16:
		return intValue(int64(val)), nil
	case int32:
		return intValue(int64(val)), nil
	case int64:
		return intValue(val), nil
	case uint8:
		return intValue(int64(val)), nil
	case uint16:
		return intValue(int64(val)), nil
	case uint32:
		return intValue(int64(val)), nil
	case uint64:
		if val > 1<<53 {
			return nil, fmt.Errorf("unsigned value %d exceeds double precision", val)
		}
		return intValue(int64(val)), nil
	case float32:
		return Double(val), nil
	case float64:
		return Double(val), nil
	case time.Time:
		return Date{val}, nil
	case []any:
		list := &List{Items: make([]Value, 0, len(val))}
		for i, item := range val {
			converted, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list.Items = append(list.Items, converted)
		}
		return list, nil
	case []string:
		list := &List{Items: make([]Value, 0, len(val))}
		for _, s := range val {
			list.Items = append(list.Items, String(s))
		}
		return list, nil
	case []int:
		list := &List{Items: make([]Value, 0, len(val))}
		for _, n := range val {
			list.Items = append(list.Items, intValue(int64(n)))
		}
		return list, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			converted, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			obj.Set(k, converted)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type for protocol encoding: %T", v)
	}
}

// intValue picks the AMF3 integer form when the value fits in 29 bits.
func intValue(n int64) Value {
	if n >= amf3IntMin && n <= amf3IntMax {
		return Int(n)
	}
	return Double(n)
}

// ToGo converts a protocol value into plain Go values suitable for JSON
// output: maps, slices, strings, float64/int64, bool, nil.
func ToGo(v Value) any {
	return toGo(v, make(map[any]bool))
}

func toGo(v Value, seen map[any]bool) any {
	switch val := v.(type) {
	case nil, Null, Undefined:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Double:
		return float64(val)
	case String:
		return string(val)
	case XML:
		return string(val)
	case Bytes:
		return []byte(val)
	case Date:
		return val.Time
	case *List:
		if val == nil || seen[val] {
			return nil
		}
		seen[val] = true
		defer delete(seen, val)
		out := make([]any, 0, len(val.Items))
		for _, item := range val.Items {
			out = append(out, toGo(item, seen))
		}
		return out
	case *Object:
		if val == nil || seen[val] {
			return nil
		}
		seen[val] = true
		defer delete(seen, val)
		out := make(map[string]any, val.Len())
		for _, k := range val.keys {
			out[k] = toGo(val.fields[k], seen)
		}
		return out
	default:
		return nil
	}
}
