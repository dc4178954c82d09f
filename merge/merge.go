// Package merge implements the artifact sub-record merge rule used when
// folding a handler's partial projection into the persisted document: fill
// in what's missing, never let an empty replacement clobber existing data,
// recurse into nested objects, and overwrite otherwise.
package merge

// Into merges src into dst in place and returns dst, applying the rule set:
//   - destination key missing -> assign the source value
//   - both values are []interface{} and the source slice is empty -> keep dst
//   - both values are strings and the source string is empty -> keep dst
//   - both values are map[string]interface{} -> recurse
//   - otherwise -> source overwrites destination
//
// dst is assumed to be addressable (a top-level map, or one already present
// inside a parent map); nil dst allocates a fresh map.
func Into(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}

	for key, newValue := range src {
		existing, present := dst[key]
		if !present {
			dst[key] = newValue
			continue
		}
		dst[key] = mergeValue(existing, newValue)
	}

	return dst
}

func mergeValue(existing, newValue interface{}) interface{} {
	if existingArr, ok := existing.([]interface{}); ok {
		if newArr, ok := newValue.([]interface{}); ok {
			if len(newArr) == 0 {
				return existingArr
			}
			return newArr
		}
		return newValue
	}

	if existingStr, ok := existing.(string); ok {
		if newStr, ok := newValue.(string); ok {
			if newStr == "" {
				return existingStr
			}
			return newStr
		}
		return newValue
	}

	if existingObj, ok := existing.(map[string]interface{}); ok {
		if newObj, ok := newValue.(map[string]interface{}); ok {
			return Into(existingObj, newObj)
		}
		return newValue
	}

	return newValue
}
