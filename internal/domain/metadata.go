package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the scalar type held by a metadata Value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a scalar metadata value. The zero Value is invalid.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(s string) Value   { return Value{kind: KindString, s: s} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != 0 }

// Str returns the string form of any scalar.
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Any returns the underlying Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// ValueOf converts a decoded scalar into a Value. Collections, maps, nil and
// non-finite floats are rejected.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return floatValue(float64(t))
	case float64:
		return floatValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q", ErrInvalidInput, t)
		}
		return floatValue(f)
	case nil:
		return Value{}, fmt.Errorf("%w: null metadata value", ErrInvalidInput)
	default:
		return Value{}, fmt.Errorf("%w: non-scalar metadata value %T", ErrInvalidInput, x)
	}
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite metadata value", ErrInvalidInput)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}

// MarshalJSON encodes the scalar as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: zero metadata value", ErrInvalidInput)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON accepts only JSON scalars.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	parsed, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Metadata is a flat mapping of scalar values.
type Metadata map[string]Value

// MetadataFrom converts an untyped map at an ingestion boundary. Keys whose
// values are not scalars are left out and returned in sorted order so the
// caller can report them.
func MetadataFrom(raw map[string]any) (Metadata, []string) {
	md := make(Metadata, len(raw))
	var rejected []string
	for k, x := range raw {
		v, err := ValueOf(x)
		if err != nil {
			rejected = append(rejected, k)
			continue
		}
		md[k] = v
	}
	sort.Strings(rejected)
	return md, rejected
}

// Get returns the string form of key, or "" when absent.
func (m Metadata) Get(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.Str()
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
