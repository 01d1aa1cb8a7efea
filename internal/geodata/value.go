package geodata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// TypeOf returns the column type of a normalized value. ok is false for nil.
func TypeOf(v any) (t ValueType, ok bool) {
	switch v.(type) {
	case nil:
		return TypeNull, false
	case bool:
		return TypeBoolean, true
	case int64:
		return TypeInteger, true
	case float64:
		return TypeFloat, true
	default:
		return TypeString, true
	}
}

// Promote returns the type able to hold values of both a and b.
// Integer and float combine to float; any other conflict becomes string.
func Promote(a, b ValueType) ValueType {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case (a == TypeInteger && b == TypeFloat) || (a == TypeFloat && b == TypeInteger):
		return TypeFloat
	}
	return TypeString
}

// Normalize converts a Go value into one of the attribute value types:
// nil, string, int64, float64 or bool. Composite values become their
// compact JSON text.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return uintValue(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return uintValue(val)
	case float32:
		return float64(val)
	case json.Number:
		return numberValue(string(val))
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func uintValue(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

// numberValue turns a JSON number literal into int64 when it is integral
// and written without fraction or exponent, float64 otherwise.
func numberValue(s string) any {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return f
}

// Coerce converts a normalized value to column type t. Integers widen to
// float, anything widens to string.
func Coerce(v any, t ValueType) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeString, TypeNull:
		if s, ok := v.(string); ok {
			return s
		}
		return FormatValue(v)
	case TypeFloat:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	}
	return v
}

// FormatValue renders a value as text. nil renders as the empty string.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return FormatValue(Normalize(v))
	}
}

// FormatFloat renders f so that it reads back as a float: integral values
// keep a trailing ".0".
func FormatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) > 24 {
		s = strconv.FormatFloat(f, 'g', -1, 64)
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// InferColumn returns the narrowest type that every non-empty cell parses
// as, trying integer, float and boolean before falling back to string.
// A column without non-empty cells is TypeNull.
func InferColumn(cells []string) ValueType {
	t := TypeNull
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		t = Promote(t, cellType(c))
		if t == TypeString {
			return t
		}
	}
	return t
}

func cellType(c string) ValueType {
	if hasLeadingZero(c) {
		return TypeString
	}
	if isInteger(c) {
		return TypeInteger
	}
	if isFloat(c) {
		return TypeFloat
	}
	if isBool(c) {
		return TypeBoolean
	}
	return TypeString
}

// hasLeadingZero reports numbers written with a zero before another digit,
// such as "007" or "010.5". Identifiers like these stay text.
func hasLeadingZero(c string) bool {
	digits := strings.TrimPrefix(strings.TrimPrefix(c, "-"), "+")
	return len(digits) > 1 && digits[0] == '0' && digits[1] >= '0' && digits[1] <= '9'
}

func isInteger(c string) bool {
	_, err := strconv.ParseInt(c, 10, 64)
	return err == nil
}

func isFloat(c string) bool {
	if !strings.ContainsAny(c, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(c, 64)
	return err == nil
}

func isBool(c string) bool {
	switch strings.ToLower(c) {
	case "true", "false":
		return true
	}
	return false
}

// ParseCell converts a text cell to a value of type t. Empty cells are
// null. Cells that do not parse are kept as text.
func ParseCell(cell string, t ValueType) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	switch t {
	case TypeInteger:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(trimmed)); err == nil {
			return b
		}
	}
	return cell
}
