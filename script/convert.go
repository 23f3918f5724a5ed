package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConvertValueToBool reports the Lua truthiness of an exported value: only
// nil and false are false.
func ConvertValueToBool(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}

// ConvertEachValue flattens an exported value into the items an "each"
// iteration visits. Sequences are flattened recursively; tables with keys
// yield their values in key order.
func ConvertEachValue(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, float64:
		return []any{v}, nil
	case []any:
		var values []any
		for _, item := range v {
			subValues, err := ConvertEachValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, subValues...)
		}
		return values, nil
	case map[string]any:
		var values []any
		for _, key := range sortedKeys(v) {
			subValues, err := ConvertEachValue(v[key])
			if err != nil {
				return nil, err
			}
			values = append(values, subValues...)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported lua result type for 'each': %T", value)
	}
}

// FormatValue renders an exported value as text. Nil renders as the empty
// string; sequence items and table entries are separated by blank lines.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, FormatValue(item))
		}
		return strings.Join(items, "\n\n")
	case map[string]any:
		items := make([]string, 0, len(v))
		for _, key := range sortedKeys(v) {
			items = append(items, fmt.Sprintf("%s: %s", key, FormatValue(v[key])))
		}
		return strings.Join(items, "\n\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
