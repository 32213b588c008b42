package shapely

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/araddon/dateparse"
)

// ResponseField names the singleton field that carries a non-object answer on the wire.
const ResponseField = "response"

// DateLayout is the Go layout matching DateFormatHint.
const DateLayout = "02/01/2006:15:04:05"

// WrapResponse returns the object form of s required by function calling. Objects and unions
// made only of objects pass through; anything else is wrapped as {"response": s}.
func WrapResponse(s *Schema) (*Schema, bool) {
	if isObjectLike(s) {
		return s, false
	}
	return Object(Prop(ResponseField, s)), true
}

func isObjectLike(s *Schema) bool {
	switch s.Kind {
	case KindObject:
		return true
	case KindUnion:
		if len(s.Variants) == 0 {
			return false
		}
		for _, v := range s.Variants {
			if v.Kind != KindObject {
				return false
			}
		}
		return true
	}
	return false
}

// UnwrapResponse recovers the bare value from a validated answer to the wire form of s and
// materializes it: integers become int (out-of-range values are rejected), other numbers
// float64 and dates time.Time. Union values take the first variant that accepts them.
func UnwrapResponse(s *Schema, wrapped bool, value any) (any, error) {
	if wrapped {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, &ParseError{Message: fmt.Sprintf("expected an object with a %q field", ResponseField), Err: ErrValidation}
		}
		value = obj[ResponseField]
	}
	return materialize(s, value)
}

func materialize(s *Schema, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch s.Kind {
	case KindInteger:
		return toInt(v)
	case KindNumber:
		return plainNumbers(v), nil
	case KindDate:
		str, ok := v.(string)
		if !ok {
			return nil, &ParseError{Message: fmt.Sprintf("expected a date string, got %T", v), Err: ErrValidation}
		}
		t, err := ParseDate(str)
		if err != nil {
			return nil, &ParseError{Message: err.Error(), Err: ErrValidation}
		}
		return t, nil
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return plainNumbers(v), nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			m, err := materialize(s.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return plainNumbers(v), nil
		}
		out := make(map[string]any, len(obj))
		for k, val := range obj {
			fs, ok := s.Field(k)
			if !ok {
				out[k] = plainNumbers(val)
				continue
			}
			m, err := materialize(fs, val)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	case KindUnion:
		// First variant that accepts the value and materializes it wins.
		for _, variant := range s.Variants {
			if !accepts(variant, v) {
				continue
			}
			if m, err := materialize(variant, v); err == nil {
				return m, nil
			}
		}
	}
	return plainNumbers(v), nil
}

// accepts reports whether v has the JSON type of s. Dates accept any string.
func accepts(s *Schema, v any) bool {
	switch s.Kind {
	case KindString, KindDate:
		_, ok := v.(string)
		return ok
	case KindNumber:
		return isNumber(v)
	case KindInteger:
		_, err := toInt(v)
		return err == nil
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindUnion:
		return slices.ContainsFunc(s.Variants, func(variant *Schema) bool { return accepts(variant, v) })
	case KindEnum:
		return slices.ContainsFunc(s.Values, func(e any) bool { return reflect.DeepEqual(plainNumbers(e), plainNumbers(v)) })
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, float64, int:
		return true
	}
	return false
}

// toInt converts a JSON number to int, rejecting fractions and values int cannot hold.
func toInt(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil && int64(int(i)) == i {
			return int(i), nil
		}
		parsed, err := n.Float64()
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("integer %s out of range", n), Err: ErrValidation}
		}
		f = parsed
	case float64:
		f = n
	default:
		return nil, &ParseError{Message: fmt.Sprintf("expected an integer, got %T", v), Err: ErrValidation}
	}
	if f != math.Trunc(f) {
		return nil, &ParseError{Message: fmt.Sprintf("expected an integer, got %v", f), Err: ErrValidation}
	}
	if f < math.MinInt64 || f >= math.MaxInt64 || float64(int(f)) != f {
		return nil, &ParseError{Message: fmt.Sprintf("integer %v out of range", f), Err: ErrValidation}
	}
	return int(f), nil
}

// plainNumbers replaces json.Number with float64 throughout v.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plainNumbers(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plainNumbers(item)
		}
		return out
	}
	return v
}

// ParseDate reads a date in DateLayout, falling back to RFC 3339 and then to lenient parsing.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DateFormatHint)
	}
	return t, nil
}
