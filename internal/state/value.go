package state

import (
	"fmt"
	"math"
	"sort"
	"unicode/utf16"
)

// Kind discriminates the sealed Value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns the lowercase kind name used in errors and traces.
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
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the sealed interface over the state value variants.
// The only implementations live in this package.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the absent-value variant.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit signed integer value. Int and Float are distinct
// kinds and never compare equal to each other.
type Int int64

// Float is a 64-bit IEEE 754 value. NaN is rejected at canonical
// encoding time, not at construction.
type Float float64

// String is a Unicode string value.
type String string

// Array is an ordered sequence of values.
type Array []Value

// Object is a string-keyed mapping. Key order is not part of the
// value; canonical encoding sorts keys by UTF-16 code units.
type Object map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (String) isValue() {}
func (Array) isValue()  {}
func (Object) isValue() {}

// Equal reports deep structural equality. Kinds must match exactly:
// Int(1) and Float(1) are not equal. Nil Values are treated as Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		bf := b.(Float)
		// NaN never equals anything, matching IEEE semantics.
		return av == bf
	case String:
		return av == b.(String)
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !Equal(v, ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy. Scalars are returned as-is; Arrays and
// Objects are copied recursively so the result shares no containers
// with the input.
func Clone(v Value) Value {
	switch tv := v.(type) {
	case nil:
		return Null{}
	case Array:
		out := make(Array, len(tv))
		for i, e := range tv {
			out[i] = Clone(e)
		}
		return out
	case Object:
		out := make(Object, len(tv))
		for k, e := range tv {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// SortedKeys returns the object's keys ordered by UTF-16 code units,
// the ordering canonical encoding uses.
func SortedKeys(o Object) []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return utf16Less(keys[i], keys[j])
	})
	return keys
}

// utf16Less compares two strings by their UTF-16 code units. This
// differs from byte ordering for strings containing supplementary
// plane characters, which sort by surrogate pair values.
func utf16Less(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	n := len(ua)
	if len(ub) < n {
		n = len(ub)
	}
	for i := 0; i < n; i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// FromGo converts a decoded YAML or JSON value into a Value. Integral
// float64 values stay floats; YAML decodes integers as int, JSON as
// float64, and the distinction is preserved as given.
func FromGo(v any) (Value, error) {
	switch tv := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(tv), nil
	case int:
		return Int(tv), nil
	case int64:
		return Int(tv), nil
	case uint64:
		if tv > math.MaxInt64 {
			return nil, fmt.Errorf("state: uint64 %d overflows int", tv)
		}
		return Int(int64(tv)), nil
	case float32:
		return Float(tv), nil
	case float64:
		return Float(tv), nil
	case string:
		return String(tv), nil
	case []any:
		out := make(Array, len(tv))
		for i, e := range tv {
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("state: array index %d: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(tv))
		for k, e := range tv {
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("state: object key %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	case Value:
		return tv, nil
	default:
		return nil, fmt.Errorf("state: unsupported Go type %T", v)
	}
}

// MustFromGo is FromGo for literals known to convert, mostly tests.
func MustFromGo(v any) Value {
	out, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return out
}

// ToGo converts a Value into plain Go types suitable for the standard
// JSON and YAML encoders.
func ToGo(v Value) any {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(tv)
	case Int:
		return int64(tv)
	case Float:
		return float64(tv)
	case String:
		return string(tv)
	case Array:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = ToGo(e)
		}
		return out
	default:
		return nil
	}
}
