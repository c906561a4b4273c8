package executor

import (
	"fmt"
)

// Merge merges source into the object found at path in target.
// Objects are merged key by key, recursing into nested objects and into
// lists of equal length, so fields fetched by different steps for the same
// object end up side by side. A list on the path merges source element-wise.
func Merge(target map[string]any, source any, path []string) error {
	if len(path) == 0 {
		sourceMap, ok := source.(map[string]any)
		if !ok {
			return fmt.Errorf("source must be a map when path is empty, got %T", source)
		}
		mergeObject(target, sourceMap)
		return nil
	}

	key := path[0]
	value, exists := target[key]
	if !exists || value == nil {
		if len(path) > 1 {
			return fmt.Errorf("no value at path %v", path)
		}
		target[key] = source
		return nil
	}

	switch v := value.(type) {
	case []any:
		sourceList, ok := source.([]any)
		if !ok {
			return fmt.Errorf("source must be a list when target is a list at path %v, got %T", path, source)
		}
		if len(v) != len(sourceList) {
			return fmt.Errorf("source and target list lengths do not match at path %v: target=%d, source=%d", path, len(v), len(sourceList))
		}
		for i := range v {
			elem, ok := v[i].(map[string]any)
			if !ok {
				continue
			}
			if err := Merge(map[string]any{key: elem}, sourceList[i], path); err != nil {
				return err
			}
		}
		return nil

	case map[string]any:
		return Merge(v, source, path[1:])
	}

	return fmt.Errorf("unsupported type %T at path %v", value, path)
}

func mergeObject(target, source map[string]any) {
	for k, v := range source {
		target[k] = mergeValue(target[k], v)
	}
}

func mergeValue(target, source any) any {
	switch s := source.(type) {
	case map[string]any:
		if t, ok := target.(map[string]any); ok {
			mergeObject(t, s)
			return t
		}
	case []any:
		if t, ok := target.([]any); ok && len(t) == len(s) {
			for i := range t {
				t[i] = mergeValue(t[i], s[i])
			}
			return t
		}
	case nil:
		if target != nil {
			return target
		}
	}
	return source
}
