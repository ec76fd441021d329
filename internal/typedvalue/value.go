package typedvalue

import "fmt"

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field is one entry of an ordered map.
type Field struct {
	Key   string
	Value Value
}

// Value is a tagged union over null, bool, int, float, string, array and
// ordered map. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	items  []Value
	fields []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an array value. The slice is copied.
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindArray, items: out}
}

// Map builds an ordered map value. Later duplicates of a key replace the
// earlier value in place.
func Map(fields ...Field) Value {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		out = setField(out, f.Key, f.Value)
	}
	return Value{kind: KindMap, fields: out}
}

// F is shorthand for building a Field.
func F(key string, value Value) Field { return Field{Key: key, Value: value} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Get looks up a key on a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// GetString returns the string at key, or "" when absent or not a string.
func (v Value) GetString(key string) string {
	field, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, _ := field.AsString()
	return s
}

// With returns a copy of the map with key set to value. Non-map receivers
// are treated as an empty map.
func (v Value) With(key string, value Value) Value {
	var fields []Field
	if v.kind == KindMap {
		fields = make([]Field, len(v.fields), len(v.fields)+1)
		copy(fields, v.fields)
	}
	return Value{kind: KindMap, fields: setField(fields, key, value)}
}

// Equal reports deep equality. Map comparison is order sensitive.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != other.fields[i].Key || !v.fields[i].Value.Equal(other.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	return string(ToPlainJSON(v))
}

func setField(fields []Field, key string, value Value) []Field {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, Field{Key: key, Value: value})
}
