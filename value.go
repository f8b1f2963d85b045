package dark

import (
	"encoding/json"
	"fmt"
)

// ValueKind identifies which variant of Value is populated.
type ValueKind int

const (
	// KindNull represents the absence of a value.
	KindNull ValueKind = iota
	// KindString represents a text value.
	KindString
	// KindInt represents a signed 64-bit integer value.
	KindInt
	// KindFloat represents a 64-bit IEEE float value.
	KindFloat
	// KindBool represents a boolean value.
	KindBool
)

// Value is the tagged variant used for flag variations and user attributes:
// string, int, float, or bool. It is immutable once constructed.
//
// Equality between Int and Float is numeric (after widening the int to
// float64); all other cross-kind comparisons are unequal. Ordering
// (LessThan/GreaterThan) is defined only between Int and Float.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

// Null returns the absent value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int wraps a signed 64-bit integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the tag of this value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether this value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether this value is an Int or a Float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// StringValue returns the text payload, or "" if this is not a String.
func (v Value) StringValue() string {
	if v.kind == KindString {
		return v.s
	}
	return ""
}

// BoolValue returns the boolean payload, or false if this is not a Bool.
func (v Value) BoolValue() bool {
	if v.kind == KindBool {
		return v.b
	}
	return false
}

// IntValue returns the integer payload, truncating a Float if necessary.
func (v Value) IntValue() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	default:
		return 0
	}
}

// Float64Value widens an Int to float64, or returns the Float payload directly.
// Returns 0 for non-numeric kinds.
func (v Value) Float64Value() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	default:
		return 0
	}
}

// Equal implements the value-domain equality rule: exact per-tag equality,
// except Int and Float compare numerically after widening.
func (v Value) Equal(o Value) bool {
	if v.kind == o.kind {
		switch v.kind {
		case KindNull:
			return true
		case KindString:
			return v.s == o.s
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return v.f == o.f
		case KindBool:
			return v.b == o.b
		}
	}
	if v.IsNumber() && o.IsNumber() {
		return v.Float64Value() == o.Float64Value()
	}
	return false
}

// String formats the value for debugging/log output.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its underlying JSON primitive.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON primitive into the appropriate Value kind.
// JSON numbers with no fractional part and no exponent become Int; all
// other numbers become Float. This mirrors the wire format used by the
// control plane for flag variations and clause values.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueFromInterface(raw, data)
	return nil
}

// ValueFromInterface converts a decoded interface{} (as produced by
// encoding/json) into a Value. raw is the original JSON bytes for the
// scalar, used to distinguish "34" (Int) from "34.0" (Float); pass nil
// if unavailable, in which case whole numbers always become Int.
func ValueFromInterface(raw interface{}, original []byte) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		if original != nil {
			if looksIntegral(original) {
				return Int(int64(t))
			}
			return Float(t)
		}
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case int64:
		return Int(t)
	case int:
		return Int(int64(t))
	default:
		return Null()
	}
}

func looksIntegral(raw []byte) bool {
	for _, c := range raw {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}
