package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// value is a single machine value. The concrete types are:
//
//	nil          nil
//	boolean      bool
//	number       int64 (integer subtype) or float64 (float subtype)
//	string       string
//	table        *table
//	function     *goFunction
//	userdata     *userdata
//	thread       *State
//
// Values never leave this package; embedders observe them through the
// stack API only.
type value any

// goFunction is a host-implemented callable.
type goFunction struct {
	fn GoFunc
}

// userdata carries an opaque host payload plus an optional metatable.
// The payload is a single-owner cell: SetUserdata replaces it in place,
// which is how value-semantics host types are mutated through the
// machine.
type userdata struct {
	payload   any
	meta      *table
	finalized bool
}

// ---------------------------------------------------------------------------
// Type inspection
// ---------------------------------------------------------------------------

func typeOf(v value) TypeTag {
	switch v.(type) {
	case nil:
		return TypeNil
	case bool:
		return TypeBoolean
	case int64, float64:
		return TypeNumber
	case string:
		return TypeString
	case *table:
		return TypeTable
	case *goFunction:
		return TypeFunction
	case *userdata:
		return TypeUserdata
	case *State:
		return TypeThread
	default:
		panic(internalError(fmt.Sprintf("vm: impossible value type %T", v)))
	}
}

// isTruthy follows the machine's truth rule: only nil and false are
// falsy.
func isTruthy(v value) bool {
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return !ok || b
}

// ---------------------------------------------------------------------------
// Numeric conversions
// ---------------------------------------------------------------------------

// toNumber converts a value to a float, applying the string coercion
// rule. Only numbers and numeric strings convert.
func toNumber(v value) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		if n, ok := parseNumber(v); ok {
			switch n := n.(type) {
			case int64:
				return float64(n), true
			case float64:
				return n, true
			}
		}
	}
	return 0, false
}

// toInteger converts a value to an integer. Floats convert only when
// they carry no fractional part and fit in int64; strings convert via
// parseNumber under the same rule.
func toInteger(v value) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case float64:
		return floatToInteger(v)
	case string:
		if n, ok := parseNumber(v); ok {
			return toInteger(n)
		}
	}
	return 0, false
}

// twoTo63 is 2^63 as a float, the first magnitude past int64 range.
const twoTo63 = 9223372036854775808.0

func floatToInteger(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < -twoTo63 || f >= twoTo63 {
		return 0, false
	}
	return int64(f), true
}

// parseNumber decodes a numeric string to int64 or float64. Leading and
// trailing spaces are permitted; hexadecimal integers use the 0x prefix.
func parseNumber(s string) (value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// numberToString renders a number the way the machine prints it:
// integers without a point, floats with up to 14 significant digits and
// a trailing ".0" when nothing else marks them as floats.
func numberToString(v value) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'g', 14, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	}
	panic(internalError("vm: numberToString on non-number"))
}

// toString converts a value to a string, applying the number coercion
// rule only. No metamethod is consulted.
func toString(v value) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int64, float64:
		return numberToString(v), true
	}
	return "", false
}

// normalizeKey canonicalizes table keys: float keys with an integral
// value collapse to the integer subtype so t[2] and t[2.0] are one slot.
func normalizeKey(v value) value {
	if f, ok := v.(float64); ok {
		if i, ok := floatToInteger(f); ok {
			return i
		}
	}
	return v
}

// rawEqual compares two values without metamethods. Numbers compare
// across subtypes; everything else compares by identity or exact value.
func rawEqual(a, b value) bool {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return float64(av) == bv
		}
		return false
	case float64:
		switch bv := b.(type) {
		case int64:
			return av == float64(bv)
		case float64:
			return av == bv
		}
		return false
	}
	return a == b
}
