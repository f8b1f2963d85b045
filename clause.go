package dark

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Operator identifies one of the eleven predicate kinds a Clause can apply.
type Operator string

// The complete set of operators a Clause may use. Unrecognized operators
// (e.g. a value read from a flag definition written by a newer control
// plane) evaluate to operatorNoneFn, i.e. never match.
const (
	OperatorIn                 Operator = "in"
	OperatorEndsWith           Operator = "endsWith"
	OperatorStartsWith         Operator = "startsWith"
	OperatorMatches            Operator = "matches"
	OperatorContains           Operator = "contains"
	OperatorLessThan           Operator = "lessThan"
	OperatorLessThanOrEqual    Operator = "lessThanOrEqual"
	OperatorGreaterThan        Operator = "greaterThan"
	OperatorGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OperatorBefore             Operator = "before"
	OperatorAfter              Operator = "after"
)

type opFn func(userValue Value, clauseValue Value) bool

var allOps = map[Operator]opFn{
	OperatorIn:                 operatorInFn,
	OperatorEndsWith:           operatorEndsWithFn,
	OperatorStartsWith:         operatorStartsWithFn,
	OperatorMatches:            operatorMatchesFn,
	OperatorContains:           operatorContainsFn,
	OperatorLessThan:           operatorLessThanFn,
	OperatorLessThanOrEqual:    operatorLessThanOrEqualFn,
	OperatorGreaterThan:        operatorGreaterThanFn,
	OperatorGreaterThanOrEqual: operatorGreaterThanOrEqualFn,
	OperatorBefore:             operatorBeforeFn,
	OperatorAfter:              operatorAfterFn,
}

func operatorFn(op Operator) opFn {
	if fn, ok := allOps[op]; ok {
		return fn
	}
	return operatorNoneFn
}

func operatorNoneFn(Value, Value) bool { return false }

func operatorInFn(u, c Value) bool { return u.Equal(c) }

func stringOperator(u, c Value, fn func(a, b string) bool) bool {
	if u.Kind() == KindString && c.Kind() == KindString {
		return fn(u.StringValue(), c.StringValue())
	}
	return false
}

func operatorStartsWithFn(u, c Value) bool { return stringOperator(u, c, strings.HasPrefix) }
func operatorEndsWithFn(u, c Value) bool   { return stringOperator(u, c, strings.HasSuffix) }
func operatorContainsFn(u, c Value) bool   { return stringOperator(u, c, strings.Contains) }

func operatorMatchesFn(u, c Value) bool {
	return stringOperator(u, c, func(s, pattern string) bool {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	})
}

func numericOperator(u, c Value, fn func(a, b float64) bool) bool {
	if u.IsNumber() && c.IsNumber() {
		return fn(u.Float64Value(), c.Float64Value())
	}
	return false
}

func operatorLessThanFn(u, c Value) bool { return numericOperator(u, c, func(a, b float64) bool { return a < b }) }
func operatorLessThanOrEqualFn(u, c Value) bool {
	return numericOperator(u, c, func(a, b float64) bool { return a <= b })
}
func operatorGreaterThanFn(u, c Value) bool {
	return numericOperator(u, c, func(a, b float64) bool { return a > b })
}
func operatorGreaterThanOrEqualFn(u, c Value) bool {
	return numericOperator(u, c, func(a, b float64) bool { return a >= b })
}

func dateOperator(u, c Value, fn func(a, b time.Time) bool) bool {
	ut, ok := parseInstant(u)
	if !ok {
		return false
	}
	ct, ok := parseInstant(c)
	if !ok {
		return false
	}
	return fn(ut, ct)
}

func operatorBeforeFn(u, c Value) bool { return dateOperator(u, c, time.Time.Before) }
func operatorAfterFn(u, c Value) bool  { return dateOperator(u, c, time.Time.After) }

// parseInstant converts a Value into a time instant per spec.md §4.2:
// strings first try RFC-3339 parsing, then (on failure) are tried as a
// fractional number of milliseconds since the epoch; Int/Float values are
// always ms-since-epoch, with the fractional part of a Float giving
// sub-millisecond precision. Anything else (bool, null, unparsable
// string) fails, which callers must treat as "never matches".
func parseInstant(v Value) (time.Time, bool) {
	switch v.Kind() {
	case KindString:
		if t, err := time.Parse(time.RFC3339Nano, v.StringValue()); err == nil {
			return t.UTC(), true
		}
		if ms, err := strconv.ParseFloat(v.StringValue(), 64); err == nil {
			return msToTime(ms), true
		}
		return time.Time{}, false
	case KindInt:
		return msToTime(float64(v.IntValue())), true
	case KindFloat:
		return msToTime(v.Float64Value()), true
	default:
		return time.Time{}, false
	}
}

func msToTime(ms float64) time.Time {
	return time.Unix(0, int64(ms*float64(time.Millisecond))).UTC()
}

// Clause is one predicate over a user attribute: "does attribute Op any
// of Values", optionally negated.
type Clause struct {
	Attribute string   `json:"attribute"`
	Op        Operator `json:"op"`
	Values    []Value  `json:"values"`
	Negate    bool     `json:"negate"`
}

// Matches resolves the user's attribute and applies the clause's operator
// against every configured value, OR-ing the results, then XORs with
// Negate. An unresolved attribute is false regardless of Negate.
func (c Clause) Matches(user User) bool {
	uValue := user.GetAttribute(c.Attribute)
	if uValue.IsNull() {
		return false
	}
	fn := operatorFn(c.Op)
	matched := false
	for _, cv := range c.Values {
		if fn(uValue, cv) {
			matched = true
			break
		}
	}
	if c.Negate {
		return !matched
	}
	return matched
}
