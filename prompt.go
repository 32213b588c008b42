package shapely

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// PopulateParameters substitutes every "$key" in text with the rendered value of params[key].
// Longer keys are substituted first so "$animal10" is not clobbered by "$animal1".
func PopulateParameters(text string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	for _, k := range keys {
		text = strings.ReplaceAll(text, "$"+k, renderParameter(params[k]))
	}
	return text
}

// renderParameter renders nil as null, sequences as an indexed list, structs as their type
// name followed by JSON, maps as JSON and anything else with fmt.
func renderParameter(v any) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range rv.Len() {
			parts[i] = fmt.Sprintf("%d: %s", i, renderParameter(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Struct:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(v)
		}
		return rv.Type().Name() + string(b)
	case reflect.Map:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
